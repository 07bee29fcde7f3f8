//go:build linux || freebsd

package source

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// deviceWatcher は /dev/input を監視し、新しく作成されたイベントデバイスを通知する。
// 検出したパスはチャネルに積むだけで、実際に開くのはディスパッチャ側のdrain呼び出し。
type deviceWatcher struct {
	watcher *fsnotify.Watcher
	added   chan string
	done    chan struct{}
}

func newDeviceWatcher() (*deviceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add("/dev/input"); err != nil {
		_ = w.Close()
		return nil, err
	}
	dw := &deviceWatcher{
		watcher: w,
		added:   make(chan string, 16),
		done:    make(chan struct{}),
	}
	go dw.run()
	return dw, nil
}

func (dw *deviceWatcher) run() {
	for {
		select {
		case <-dw.done:
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), "event") {
				continue
			}
			select {
			case dw.added <- event.Name:
			default:
				// バッファが溢れた分は捨てる。計測を止めないことを優先する。
			}
		case _, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// drain は検出済みのデバイスパスをブロックせずに取り出す
func (dw *deviceWatcher) drain() []string {
	var paths []string
	for {
		select {
		case p := <-dw.added:
			paths = append(paths, p)
		default:
			return paths
		}
	}
}

func (dw *deviceWatcher) Close() error {
	close(dw.done)
	return dw.watcher.Close()
}
