//go:build darwin

package source

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <IOKit/hid/IOHIDLib.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

extern void goHandleHIDValue(uintptr_t handle, uint32_t usagePage);

static void hidInputCallback(void *context, IOReturn result, void *sender, IOHIDValueRef value) {
	IOHIDElementRef element = IOHIDValueGetElement(value);
	goHandleHIDValue((uintptr_t)context, IOHIDElementGetUsagePage(element));
}

static IOHIDManagerRef openHIDManager(uintptr_t handle) {
	IOHIDManagerRef manager = IOHIDManagerCreate(kCFAllocatorDefault, kIOHIDOptionsTypeNone);
	if (manager == NULL) {
		return NULL;
	}
	IOHIDManagerSetDeviceMatching(manager, NULL);
	IOHIDManagerRegisterInputValueCallback(manager, hidInputCallback, (void *)handle);
	IOHIDManagerScheduleWithRunLoop(manager, CFRunLoopGetCurrent(), kCFRunLoopDefaultMode);
	if (IOHIDManagerOpen(manager, kIOHIDOptionsTypeNone) != kIOReturnSuccess) {
		IOHIDManagerUnscheduleFromRunLoop(manager, CFRunLoopGetCurrent(), kCFRunLoopDefaultMode);
		CFRelease(manager);
		return NULL;
	}
	return manager;
}

static void stepRunLoop(double seconds) {
	CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}

static void closeHIDManager(IOHIDManagerRef manager) {
	IOHIDManagerClose(manager, kIOHIDOptionsTypeNone);
	CFRelease(manager);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"

	"github.com/char5742/evhz/internal/clock"
	"github.com/char5742/evhz/internal/config"
)

// GenericDesktopページ（マウス・キーボードなどの操作系エレメント）
const hidUsagePageGenericDesktop = 0x01

// hidDeviceID は集約デバイスのID。IOHIDManagerはデバイス単位の分離をしないため1つに固定。
const hidDeviceID = 0

// NewPlatformSource はIOHIDManagerのコールバックからイベントを受け取るソースを作成する
func NewPlatformSource(cfg *config.Config, clk clock.Clock) (Source, error) {
	return &hidSource{clk: clk, timeout: cfg.Poll.Timeout().Seconds()}, nil
}

// hidSource はランループ上のコールバックで届いたイベントを一旦バッファし、
// Pollのたびにランループを1区切り実行してからまとめて引き渡す。
// コールバックはstepRunLoopと同じスレッドで呼ばれるためロックは不要。
type hidSource struct {
	clk     clock.Clock
	timeout float64 // 1回のランループ実行時間（秒）
	manager C.IOHIDManagerRef
	handle  cgo.Handle
	pending []Event
}

func (s *hidSource) Start(announce func(DeviceInfo)) error {
	s.handle = cgo.NewHandle(s)
	manager := C.openHIDManager(C.uintptr_t(s.handle))
	if manager == nil {
		s.handle.Delete()
		s.handle = 0
		return fmt.Errorf("HIDマネージャを開けませんでした（入力監視の権限を確認してください）")
	}
	s.manager = manager
	announce(DeviceInfo{ID: hidDeviceID, Label: "device0", Name: "HID Device"})
	return nil
}

//export goHandleHIDValue
func goHandleHIDValue(handle C.uintptr_t, usagePage C.uint32_t) {
	s := cgo.Handle(handle).Value().(*hidSource)
	if uint32(usagePage) != hidUsagePageGenericDesktop {
		return
	}
	s.pending = append(s.pending, Event{DeviceID: hidDeviceID, Timestamp: s.clk.Now()})
}

func (s *hidSource) Poll(emit func(Event)) error {
	C.stepRunLoop(C.double(s.timeout))
	for _, ev := range s.pending {
		emit(ev)
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *hidSource) Close() error {
	if s.manager != nil {
		C.closeHIDManager(s.manager)
		s.manager = nil
	}
	if s.handle != 0 {
		s.handle.Delete()
		s.handle = 0
	}
	return nil
}
