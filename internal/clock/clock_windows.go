//go:build windows

package clock

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type qpcClock struct {
	freq uint64
}

// New はQueryPerformanceCounterベースの単調クロックを返す
func New() (Clock, error) {
	var freq int64
	if err := windows.QueryPerformanceFrequency(&freq); err != nil {
		return nil, fmt.Errorf("QueryPerformanceFrequencyに失敗しました: %w", err)
	}
	if freq == 0 {
		return nil, fmt.Errorf("パフォーマンスカウンタが利用できません")
	}
	return &qpcClock{freq: uint64(freq)}, nil
}

func (c *qpcClock) Now() uint64 {
	var counter int64
	if err := windows.QueryPerformanceCounter(&counter); err != nil {
		return 0
	}
	return uint64(counter) * Scale / c.freq
}
