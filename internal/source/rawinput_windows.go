//go:build windows

package source

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/char5742/evhz/internal/clock"
	"github.com/char5742/evhz/internal/config"
)

// raw input APIの定数（winuser.hより）
const (
	wmInput             = 0x00FF     // WM_INPUT
	ridInput            = 0x10000003 // RID_INPUT
	ridevInputSink      = 0x00000100 // RIDEV_INPUTSINK: フォーカス外でも入力を受け取る
	rimTypeMouse        = 0
	rimTypeKeyboard     = 1
	riKeyBreak          = 0x01 // キーリリース
	hidUsagePageGeneric = 0x01
	hidUsageMouse       = 0x02
	hidUsageKeyboard    = 0x06
	qsAllInput          = 0x04FF // QS_ALLINPUT
	pmRemove            = 0x0001 // PM_REMOVE
)

// HWND_MESSAGE: メッセージ専用ウィンドウの親（(HWND)-3）
const hwndMessage = ^uintptr(2)

// 固定の2デバイス
const (
	deviceMouse    = 0
	deviceKeyboard = 1
)

var (
	user32                        = windows.NewLazySystemDLL("user32.dll")
	procRegisterClassExW          = user32.NewProc("RegisterClassExW")
	procCreateWindowExW           = user32.NewProc("CreateWindowExW")
	procDestroyWindow             = user32.NewProc("DestroyWindow")
	procDefWindowProcW            = user32.NewProc("DefWindowProcW")
	procRegisterRawInputDevices   = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData           = user32.NewProc("GetRawInputData")
	procPeekMessageW              = user32.NewProc("PeekMessageW")
	procTranslateMessage          = user32.NewProc("TranslateMessage")
	procDispatchMessageW          = user32.NewProc("DispatchMessageW")
	procMsgWaitForMultipleObjects = user32.NewProc("MsgWaitForMultipleObjects")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       uintptr
	Cursor     uintptr
	Background uintptr
	MenuName   *uint16
	ClassName  *uint16
	IconSm     uintptr
}

type rawInputDevice struct {
	UsagePage uint16
	Usage     uint16
	Flags     uint32
	Target    windows.HWND
}

type message struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

// RAWINPUTHEADERのサイズ（dwType, dwSize, hDevice, wParam）
const rawInputHeaderSize = 8 + 2*unsafe.Sizeof(uintptr(0))

// ウィンドウプロシージャはCコールバックとして登録されるため、
// 対象のソースはパッケージ変数で参照する（同時に1つしか存在しない）
var activeRawSource *rawInputSource

// NewPlatformSource はraw input通知を受けるメッセージ専用ウィンドウのソースを作成する
func NewPlatformSource(cfg *config.Config, clk clock.Clock) (Source, error) {
	return &rawInputSource{clk: clk, timeoutMillis: uint32(cfg.Poll.Timeout().Milliseconds())}, nil
}

// rawInputSource はWM_INPUT通知をデコードしてマウス・キーボードの2デバイスへ振り分ける
type rawInputSource struct {
	clk           clock.Clock
	timeoutMillis uint32
	hwnd          windows.HWND
	pending       []Event
}

func (s *rawInputSource) Start(announce func(DeviceInfo)) error {
	className, err := windows.UTF16PtrFromString("evhzRawInput")
	if err != nil {
		return err
	}
	instance, err := windows.GetModuleHandle(nil)
	if err != nil {
		return fmt.Errorf("モジュールハンドルの取得に失敗しました: %w", err)
	}

	wc := wndClassEx{
		Size:      uint32(unsafe.Sizeof(wndClassEx{})),
		WndProc:   windows.NewCallback(rawInputWndProc),
		Instance:  instance,
		ClassName: className,
	}
	if atom, _, callErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
		return fmt.Errorf("ウィンドウクラスの登録に失敗しました: %v", callErr)
	}

	hwnd, _, callErr := procCreateWindowExW.Call(
		0, uintptr(unsafe.Pointer(className)), 0, 0,
		0, 0, 0, 0,
		hwndMessage, 0, uintptr(instance), 0,
	)
	if hwnd == 0 {
		return fmt.Errorf("メッセージウィンドウの作成に失敗しました: %v", callErr)
	}
	s.hwnd = windows.HWND(hwnd)
	activeRawSource = s

	devices := []rawInputDevice{
		{UsagePage: hidUsagePageGeneric, Usage: hidUsageMouse, Flags: ridevInputSink, Target: s.hwnd},
		{UsagePage: hidUsagePageGeneric, Usage: hidUsageKeyboard, Flags: ridevInputSink, Target: s.hwnd},
	}
	ret, _, callErr := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&devices[0])),
		uintptr(len(devices)),
		unsafe.Sizeof(devices[0]),
	)
	if ret == 0 {
		return fmt.Errorf("raw inputデバイスの登録に失敗しました: %v", callErr)
	}

	announce(DeviceInfo{ID: deviceMouse, Label: "device0", Name: "Mouse"})
	announce(DeviceInfo{ID: deviceKeyboard, Label: "device1", Name: "Keyboard"})
	return nil
}

// NewCallbackの制約によりすべての引数はuintptr幅で受ける
func rawInputWndProc(hwnd, msg, wparam, lparam uintptr) uintptr {
	if msg == wmInput && activeRawSource != nil {
		activeRawSource.handleRawInput(lparam)
	}
	ret, _, _ := procDefWindowProcW.Call(hwnd, msg, wparam, lparam)
	return ret
}

// handleRawInput はRAWINPUTレコードをデコードしてイベントを積む。
// 取得やデコードに失敗したレコードはエラーにせず捨てる。
func (s *rawInputSource) handleRawInput(handle uintptr) {
	var size uint32
	ret, _, _ := procGetRawInputData.Call(handle, ridInput, 0, uintptr(unsafe.Pointer(&size)), rawInputHeaderSize)
	if ret != 0 || size == 0 {
		return
	}
	buf := make([]byte, size)
	ret, _, _ = procGetRawInputData.Call(handle, ridInput, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), rawInputHeaderSize)
	if ret == ^uintptr(0) || ret < rawInputHeaderSize {
		return
	}

	data := buf[rawInputHeaderSize:]
	switch binary.LittleEndian.Uint32(buf[0:4]) {
	case rimTypeMouse:
		// RAWMOUSE: usFlags(2) pad(2) ulButtons(4) ulRawButtons(4) lLastX(4) lLastY(4)
		if len(data) < 20 {
			return
		}
		lastX := int32(binary.LittleEndian.Uint32(data[12:16]))
		lastY := int32(binary.LittleEndian.Uint32(data[16:20]))
		if lastX == 0 && lastY == 0 {
			// 変位のないマウスパケット（ボタンのみなど）はイベントとして数えない
			return
		}
		s.pending = append(s.pending, Event{DeviceID: deviceMouse, Timestamp: s.clk.Now()})
	case rimTypeKeyboard:
		// RAWKEYBOARD: MakeCode(2) Flags(2) Reserved(2) VKey(2) Message(4)
		if len(data) < 4 {
			return
		}
		if binary.LittleEndian.Uint16(data[2:4])&riKeyBreak != 0 {
			// キーリリースは数えない
			return
		}
		s.pending = append(s.pending, Event{DeviceID: deviceKeyboard, Timestamp: s.clk.Now()})
	}
}

func (s *rawInputSource) Poll(emit func(Event)) error {
	// メッセージが届くかタイムアウトするまで待ってからキューを処理する
	procMsgWaitForMultipleObjects.Call(0, 0, 0, uintptr(s.timeoutMillis), qsAllInput)

	var m message
	for {
		ret, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), uintptr(s.hwnd), 0, 0, pmRemove)
		if ret == 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}

	for _, ev := range s.pending {
		emit(ev)
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *rawInputSource) Close() error {
	if s.hwnd != 0 {
		procDestroyWindow.Call(uintptr(s.hwnd))
		s.hwnd = 0
	}
	if activeRawSource == s {
		activeRawSource = nil
	}
	return nil
}
