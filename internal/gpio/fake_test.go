package gpio

import (
	"testing"
	"time"
)

// pulse issues one full clock pulse and returns the chip's bit sampled while
// the clock was high.
func pulse(t *testing.T, clock Line, chip *FakeChip) int {
	t.Helper()
	if err := clock.SetValue(High); err != nil {
		t.Fatalf("clock high: %v", err)
	}
	bit, err := chip.Value()
	if err != nil {
		t.Fatalf("chip value: %v", err)
	}
	if err := clock.SetValue(Low); err != nil {
		t.Fatalf("clock low: %v", err)
	}
	return bit
}

func TestFakeChipShiftsFrameMSBFirst(t *testing.T) {
	chip := NewFakeChip(0x2A) // 0b101010
	port := NewFakePort(chip)
	clock := port.Clock()

	if v, _ := chip.Value(); v != Low {
		t.Fatalf("expected chip ready (low), got %d", v)
	}

	var frame uint32
	for i := 0; i < 24; i++ {
		frame = frame<<1 | uint32(pulse(t, clock, chip))
	}
	if frame != 0x2A {
		t.Errorf("frame: got %#x, want 0x2a", frame)
	}

	// Config pulse: DOUT pulled high again.
	if bit := pulse(t, clock, chip); bit != High {
		t.Errorf("expected high during config pulse, got %d", bit)
	}
}

func TestFakeChipAdvancesFramesPerCycle(t *testing.T) {
	chip := NewFakeChip(1, 2)
	port := NewFakePort(chip)
	clock := port.Clock()

	readFrame := func() uint32 {
		var frame uint32
		for i := 0; i < 24; i++ {
			frame = frame<<1 | uint32(pulse(t, clock, chip))
		}
		pulse(t, clock, chip) // config pulse completes the 25-pulse cycle
		return frame
	}

	if got := readFrame(); got != 1 {
		t.Errorf("first frame: got %d, want 1", got)
	}
	if got := readFrame(); got != 2 {
		t.Errorf("second frame: got %d, want 2", got)
	}
	// Script exhausted: last frame repeats.
	if got := readFrame(); got != 2 {
		t.Errorf("repeated frame: got %d, want 2", got)
	}
}

func TestFakeChipReadyAfterPolls(t *testing.T) {
	chip := NewFakeChip(5)
	chip.ReadyAfterPolls = 2
	NewFakePort(chip)

	for i := 0; i < 2; i++ {
		if v, _ := chip.Value(); v != High {
			t.Fatalf("poll %d: expected high (not ready), got %d", i, v)
		}
	}
	if v, _ := chip.Value(); v != Low {
		t.Errorf("expected ready after 2 polls, got high")
	}
}

func TestFakeChipNeverReady(t *testing.T) {
	chip := NewFakeChip(5)
	chip.NeverReady = true
	port := NewFakePort(chip)

	for i := 0; i < 30; i++ {
		port.Clock().SetValue(High)
		port.Clock().SetValue(Low)
		if v, _ := chip.Value(); v != High {
			t.Fatalf("pulse %d: expected high, got %d", i, v)
		}
	}
}

func TestFakeClockPowerCycle(t *testing.T) {
	chip := NewFakeChip(5)
	port := NewFakePort(chip)
	clock := port.Clock().(*FakeClock)

	// Short pulse: no power cycle.
	clock.SetValue(High)
	clock.SetValue(Low)
	if clock.PowerDowns != 0 {
		t.Errorf("short pulse caused power down")
	}

	// Held high past 60us: power cycle.
	clock.SetValue(High)
	time.Sleep(100 * time.Microsecond)
	clock.SetValue(Low)
	if clock.PowerDowns != 1 {
		t.Errorf("PowerDowns: got %d, want 1", clock.PowerDowns)
	}
	if chip.PowerCycles != 1 {
		t.Errorf("chip PowerCycles: got %d, want 1", chip.PowerCycles)
	}
}

func TestFakeChipFrameEncoding(t *testing.T) {
	if got := Frame(-1); got != 0xFFFFFF {
		t.Errorf("Frame(-1): got %#x, want 0xffffff", got)
	}
	if got := Frame(1000); got != 1000 {
		t.Errorf("Frame(1000): got %#x, want 1000", got)
	}
}

func TestFakePortClose(t *testing.T) {
	port := NewFakePort(NewFakeChip(1))
	if port.Closed {
		t.Error("should not be closed initially")
	}
	if err := port.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !port.Closed {
		t.Error("should be closed after Close()")
	}
}
