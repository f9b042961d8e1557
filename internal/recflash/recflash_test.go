package recflash

import (
	"testing"

	"downholeloader/internal/partition"
)

type fakeClock struct{ ms uint32 }

func (c *fakeClock) Millis() uint32   { return c.ms }
func (c *fakeClock) advance(n uint32) { c.ms += n }

type fakeRawDevice struct {
	erased      []uint32
	eraseResult partition.FlashResult
}

func (f *fakeRawDevice) ReadWords(addr uint32, dst []uint16) error    { return nil }
func (f *fakeRawDevice) WriteWords(addr uint32, words []uint16) error { return nil }
func (f *fakeRawDevice) IsBlank(addr uint32, n uint32) bool           { return false }
func (f *fakeRawDevice) EraseSectorMask(mask uint32) partition.FlashResult {
	f.erased = append(f.erased, mask)
	if f.eraseResult == (partition.FlashResult{}) {
		return partition.FlashResult{OK: true}
	}
	return f.eraseResult
}

func TestFormatStartsErasureAndReportsBusyUntilComplete(t *testing.T) {
	raw := &fakeRawDevice{}
	clk := &fakeClock{}
	dev := NewDevice(raw, 0x08, clk, 100)

	if dev.Busy() {
		t.Fatal("should not be busy before any format")
	}
	if err := dev.Format(); err != nil {
		t.Fatalf("Format() = %v", err)
	}
	if len(raw.erased) != 1 || raw.erased[0] != 0x08 {
		t.Fatalf("erased = %v, want [0x08]", raw.erased)
	}
	if !dev.Busy() {
		t.Fatal("expected Busy() to be true right after Format()")
	}

	clk.advance(50)
	if !dev.Busy() {
		t.Fatal("expected still busy halfway through the format duration")
	}

	clk.advance(51)
	if dev.Busy() {
		t.Fatal("expected Busy() to clear once the format duration has elapsed")
	}
}

func TestFormatRejectedWhileInProgress(t *testing.T) {
	raw := &fakeRawDevice{}
	clk := &fakeClock{}
	dev := NewDevice(raw, 0x08, clk, 100)

	if err := dev.Format(); err != nil {
		t.Fatalf("first Format() = %v", err)
	}
	if err := dev.Format(); err != ErrFormatInProgress {
		t.Fatalf("second Format() = %v, want ErrFormatInProgress", err)
	}
	if len(raw.erased) != 1 {
		t.Fatalf("expected only one erase to have been issued, got %d", len(raw.erased))
	}
}

func TestFormatFailurePropagatesAndLeavesNotBusy(t *testing.T) {
	raw := &fakeRawDevice{eraseResult: partition.FlashResult{OK: false, Code: 7}}
	clk := &fakeClock{}
	dev := NewDevice(raw, 0x08, clk, 100)

	if err := dev.Format(); err != ErrFormatFailed {
		t.Fatalf("Format() = %v, want ErrFormatFailed", err)
	}
	if dev.Busy() {
		t.Fatal("a failed erase should not leave the device reporting busy")
	}
}

func TestFormatCanRestartOnceComplete(t *testing.T) {
	raw := &fakeRawDevice{}
	clk := &fakeClock{}
	dev := NewDevice(raw, 0x08, clk, 100)

	if err := dev.Format(); err != nil {
		t.Fatalf("first Format() = %v", err)
	}
	clk.advance(200)
	if dev.Busy() {
		t.Fatal("expected format to have completed")
	}
	if err := dev.Format(); err != nil {
		t.Fatalf("second Format() after completion = %v", err)
	}
	if len(raw.erased) != 2 {
		t.Fatalf("expected two erases, got %d", len(raw.erased))
	}
}
