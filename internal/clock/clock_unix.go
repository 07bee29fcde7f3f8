//go:build linux || freebsd || darwin

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type monotonicClock struct{}

// New はOSの単調クロックを返す。クロックが利用できない場合はエラーを返す。
func New() (Clock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return nil, fmt.Errorf("単調クロックの取得に失敗しました: %w", err)
	}
	return monotonicClock{}, nil
}

func (monotonicClock) Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}
