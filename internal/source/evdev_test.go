//go:build linux || freebsd

package source

import (
	"encoding/binary"
	"testing"

	"github.com/char5742/evhz/internal/consts"
)

// buildRecord は指定したフィールドでinput_eventのレコードを組み立てる
func buildRecord(sec, usec uint64, typ, code uint16, value int32) []byte {
	buf := make([]byte, consts.EventSize)
	binary.LittleEndian.PutUint64(buf[0:8], sec)
	binary.LittleEndian.PutUint64(buf[8:16], usec)
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

func TestDecodeEvent(t *testing.T) {
	buf := buildRecord(1234, 567890, consts.EvRel, 0x01, -3)

	ev := decodeEvent(buf)

	if ev.Time.Sec != 1234 || ev.Time.Usec != 567890 {
		t.Errorf("Time = %d.%06d, want 1234.567890", ev.Time.Sec, ev.Time.Usec)
	}
	if ev.Type != consts.EvRel {
		t.Errorf("Type = %#x, want EvRel", ev.Type)
	}
	if ev.Code != 0x01 {
		t.Errorf("Code = %#x, want 0x01", ev.Code)
	}
	if ev.Value != -3 {
		t.Errorf("Value = %d, want -3", ev.Value)
	}
}

func TestDecodeEventTimestampInMicros(t *testing.T) {
	// カーネル時刻のtimevalがマイクロ秒単位のタイムスタンプに合成されること
	buf := buildRecord(2, 500_000, consts.EvAbs, 0, 0)

	ev := decodeEvent(buf)
	ts := uint64(ev.Time.Sec)*1_000_000 + uint64(ev.Time.Usec)

	if ts != 2_500_000 {
		t.Errorf("タイムスタンプ = %d, want 2500000", ts)
	}
}

func TestEventNumber(t *testing.T) {
	tests := []struct {
		name string
		id   int
		ok   bool
	}{
		{"event0", 0, true},
		{"event12", 12, true},
		{"event399", 399, true},
		{"mouse0", 0, false},
		{"event", 0, false},
		{"eventX", 0, false},
		{"by-id", 0, false},
	}
	for _, tt := range tests {
		id, ok := eventNumber(tt.name)
		if ok != tt.ok || (ok && id != tt.id) {
			t.Errorf("eventNumber(%q) = (%d, %v), want (%d, %v)", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}
