package gpio

import "time"

// FakePort is a test double wiring a FakeClock to a set of FakeChips, so the
// protocol driver can be exercised without hardware. Each FakeChip behaves
// like an HX711 on a shared clock: DOUT stays high until a conversion is
// ready, then shifts out a 24-bit frame MSB-first, one bit per clock pulse.
type FakePort struct {
	clock *FakeClock
	chips []*FakeChip

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePort creates a port with one data line per chip, all sharing one
// fake clock.
func NewFakePort(chips ...*FakeChip) *FakePort {
	clock := &FakeClock{chips: chips}
	for _, c := range chips {
		if c.CyclePulses == 0 {
			c.CyclePulses = 25 // channel A, gain 128
		}
	}
	return &FakePort{clock: clock, chips: chips}
}

// Clock returns the shared fake clock line.
func (p *FakePort) Clock() Line { return p.clock }

// Data returns the chips' data lines in construction order.
func (p *FakePort) Data() []Line {
	lines := make([]Line, len(p.chips))
	for i, c := range p.chips {
		lines[i] = c
	}
	return lines
}

// Close marks the port as closed.
func (p *FakePort) Close() error {
	p.Closed = true
	return nil
}

// FakeClock is the shared PD_SCK line. Rising edges clock the attached chips;
// holding the line high for 60us or longer power-cycles them, as on hardware.
type FakeClock struct {
	chips     []*FakeChip
	level     int
	highSince time.Time

	// Pulses counts rising edges since construction.
	Pulses int

	// PowerDowns counts times the line was held high for >=60us.
	PowerDowns int

	// SetError, if set, will be returned by SetValue.
	SetError error
}

// SetValue drives the clock level, delivering edges to the attached chips.
func (c *FakeClock) SetValue(value int) error {
	if c.SetError != nil {
		return c.SetError
	}

	if value == High && c.level == Low {
		c.Pulses++
		c.highSince = time.Now()
		for _, chip := range c.chips {
			chip.clockRise()
		}
	}
	if value == Low && c.level == High {
		if time.Since(c.highSince) >= 60*time.Microsecond {
			c.PowerDowns++
			for _, chip := range c.chips {
				chip.powerCycle()
			}
		}
	}

	c.level = value
	return nil
}

// Value returns the current clock level.
func (c *FakeClock) Value() (int, error) { return c.level, nil }

// Close is a no-op.
func (c *FakeClock) Close() error { return nil }

// FakeChip simulates one HX711 on the shared clock. Frames are shifted out in
// order; the last frame repeats once the script is exhausted.
type FakeChip struct {
	// Frames contains the 24-bit frames to shift out, in order.
	Frames []uint32

	// ReadyAfterPolls is the number of data-line polls that see DOUT high
	// before each frame becomes ready. Zero means ready immediately.
	ReadyAfterPolls int

	// NeverReady keeps DOUT high forever, simulating a disconnected or
	// powered-down chip.
	NeverReady bool

	// CyclePulses is the total clock pulses per read cycle including the
	// channel/gain pulses: 25, 26, or 27. Defaults to 25 via NewFakePort.
	// Must match the driver's configuration or cycles will misalign.
	CyclePulses int

	// ReadError, if set, will be returned by Value.
	ReadError error

	// PowerCycles counts power-down/up transitions seen on the clock.
	PowerCycles int

	polls int // readiness polls seen for the current frame
	pulse int // rising edges seen in the current cycle
	frame int // index into Frames
}

// Frame encodes a signed value as a raw 24-bit two's-complement frame, for
// scripting FakeChip values in tests.
func Frame(value int32) uint32 {
	return uint32(value) & 0xFFFFFF
}

// NewFakeChip creates a chip that is immediately ready and shifts out the
// given signed values.
func NewFakeChip(values ...int32) *FakeChip {
	frames := make([]uint32, len(values))
	for i, v := range values {
		frames[i] = Frame(v)
	}
	return &FakeChip{Frames: frames}
}

// Value returns the DOUT level: high while not ready or during the
// channel/gain pulses, otherwise the current frame bit for the last clocked
// pulse.
func (c *FakeChip) Value() (int, error) {
	if c.ReadError != nil {
		return 0, c.ReadError
	}
	if c.NeverReady || len(c.Frames) == 0 {
		return High, nil
	}

	if c.pulse == 0 {
		// Conversion phase: DOUT goes low once ready.
		if c.polls >= c.ReadyAfterPolls {
			return Low, nil
		}
		c.polls++
		return High, nil
	}

	if c.pulse > 24 {
		// Channel/gain pulses: DOUT is pulled high for the next conversion.
		return High, nil
	}

	bit := (c.Frames[c.frame] >> (24 - c.pulse)) & 1
	return int(bit), nil
}

// SetValue is invalid on a data input line.
func (c *FakeChip) SetValue(value int) error { return errInputLine }

// Close is a no-op.
func (c *FakeChip) Close() error { return nil }

func (c *FakeChip) clockRise() {
	if c.NeverReady {
		return
	}
	c.pulse++
	if c.pulse >= c.CyclePulses {
		c.pulse = 0
		c.polls = 0
		if c.frame < len(c.Frames)-1 {
			c.frame++
		}
	}
}

func (c *FakeChip) powerCycle() {
	c.PowerCycles++
	c.pulse = 0
	c.polls = 0
}
