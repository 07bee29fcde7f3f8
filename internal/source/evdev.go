//go:build linux || freebsd

package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/char5742/evhz/internal/clock"
	"github.com/char5742/evhz/internal/config"
	"github.com/char5742/evhz/internal/consts"
	"github.com/char5742/evhz/internal/types"
	"github.com/char5742/evhz/internal/utils"
)

// NewPlatformSource はevdevデバイスを多重化するイベントソースを作成する。
// タイムスタンプはレコード埋め込みのカーネル時刻を使うためクロックは不要。
func NewPlatformSource(cfg *config.Config, _ clock.Clock) (Source, error) {
	return newEvdevSource(cfg), nil
}

// evdevSource は /dev/input/event* をselect(2)で多重化するイベントソース
type evdevSource struct {
	files       map[int]*os.File // デバイスID（eventNのN）→ デバイスファイル
	pollTimeout time.Duration
	maxDevices  int
	watcher     *deviceWatcher
	announce    func(DeviceInfo)
	closed      bool
}

func newEvdevSource(cfg *config.Config) *evdevSource {
	s := &evdevSource{
		files:       make(map[int]*os.File),
		pollTimeout: cfg.Poll.Timeout(),
		maxDevices:  cfg.Device.MaxDevices,
	}
	if cfg.Device.Hotplug {
		w, err := newDeviceWatcher()
		if err != nil {
			log.Printf("ホットプラグ監視を開始できませんでした: %v", err)
		} else {
			s.watcher = w
		}
	}
	return s
}

func (s *evdevSource) Start(announce func(DeviceInfo)) error {
	s.announce = announce
	for i := 0; i < s.maxDevices; i++ {
		s.openDevice(fmt.Sprintf("/dev/input/event%d", i), i)
	}
	if len(s.files) == 0 {
		return ErrNoDevices
	}
	return nil
}

// openDevice はデバイスファイルを開いて登録する。
// 開けないデバイス（未接続・権限不足など）は黙ってスキップする。
func (s *evdevSource) openDevice(path string, id int) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return
	}
	name, err := deviceName(f)
	if err != nil || name == "" {
		name = "Unknown"
	}
	s.files[id] = f
	s.announce(DeviceInfo{ID: id, Label: filepath.Base(path), Name: name})
}

// deviceName はEVIOCGNAMEでデバイスの表示名を取得する
func deviceName(f *os.File) (string, error) {
	var buf [consts.NameSize]byte
	if err := utils.IOCtl(f, consts.EviocgName, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return "", err
	}
	n := bytes.IndexByte(buf[:], 0)
	if n < 0 {
		n = len(buf)
	}
	return string(buf[:n]), nil
}

func (s *evdevSource) Poll(emit func(Event)) error {
	s.drainHotplug()

	var set unix.FdSet
	nfds := 0
	for _, f := range s.files {
		fd := int(f.Fd())
		set.Set(fd)
		if fd >= nfds {
			nfds = fd + 1
		}
	}
	if nfds == 0 {
		// 監視対象がない間もタイムアウト間隔で戻って終了フラグを確認できるようにする
		time.Sleep(s.pollTimeout)
		return nil
	}

	tv := unix.NsecToTimeval(s.pollTimeout.Nanoseconds())
	n, err := unix.Select(nfds, &set, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("selectに失敗しました: %w", err)
	}
	if n <= 0 {
		return nil
	}

	buf := make([]byte, consts.EventSize)
	for id, f := range s.files {
		if !set.IsSet(int(f.Fd())) {
			continue
		}
		nr, err := f.Read(buf)
		if err != nil || nr != consts.EventSize {
			// 不完全なレコードはエラーにせず捨てて次のデバイスへ進む
			continue
		}
		ev := decodeEvent(buf)
		if ev.Type != consts.EvRel && ev.Type != consts.EvAbs {
			continue
		}
		ts := uint64(ev.Time.Sec)*1_000_000 + uint64(ev.Time.Usec)
		emit(Event{DeviceID: id, Timestamp: ts})
	}
	return nil
}

// decodeEvent は24バイトのinput_eventレコードをデコードする（リトルエンディアン）
func decodeEvent(buf []byte) types.Event {
	var e types.Event
	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e
}

// drainHotplug は監視スレッドが検出したデバイスをディスパッチャのスレッド上で開く。
// これによりestimatorの登録が常に単一スレッドから行われる。
func (s *evdevSource) drainHotplug() {
	if s.watcher == nil {
		return
	}
	for _, path := range s.watcher.drain() {
		id, ok := eventNumber(filepath.Base(path))
		if !ok || id >= s.maxDevices {
			continue
		}
		if _, exists := s.files[id]; exists {
			continue
		}
		s.openDevice(path, id)
	}
}

// eventNumber は "event12" のようなデバイス名から番号を取り出す
func eventNumber(name string) (int, bool) {
	num, found := strings.CutPrefix(name, "event")
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(num)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func (s *evdevSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	for _, f := range s.files {
		_ = f.Close()
	}
	return nil
}
