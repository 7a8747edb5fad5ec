package hx711

import (
	"fmt"
	"log"
	"time"

	"github.com/james-e-morris/hx711-multi/internal/gpio"
)

// Channel selects the HX711 input multiplexer.
type Channel string

const (
	ChannelA Channel = "A"
	ChannelB Channel = "B"
)

const (
	framePulses = 24

	// maxPulseHigh is the longest the clock may stay high within a frame;
	// at 60us the chip enters power-down and the frame is lost.
	maxPulseHigh = 60 * time.Microsecond

	powerDownHold = 10 * time.Millisecond

	// settleTime is the datasheet settling time after power-up.
	settleTime = 400 * time.Millisecond

	defaultReadyPolls        = 20
	defaultReadyPollInterval = 10 * time.Millisecond
)

// configPulses returns the extra clock pulses issued after the 24 data bits.
// They select channel and gain for the next cycle, not the current one:
// A/128 -> 1 (25 total), B/32 -> 2 (26 total), A/64 -> 3 (27 total).
func configPulses(ch Channel, gainA int) int {
	if ch == ChannelB {
		return 2 // channel B is fixed gain 32
	}
	if gainA == 64 {
		return 3
	}
	return 1
}

// validateConfig checks a channel/gain pair against the chip's options.
func validateConfig(ch Channel, gainA int) error {
	if ch != ChannelA && ch != ChannelB {
		return fmt.Errorf("%w: got %q", ErrInvalidChannel, ch)
	}
	if gainA != 128 && gainA != 64 {
		return fmt.Errorf("%w: got %d", ErrInvalidGain, gainA)
	}
	return nil
}

// Driver owns the shared clock line and performs one synchronized bit
// exchange across all ready devices per clock pulse. A cycle runs to
// completion before another begins; nothing else may touch the clock or data
// lines mid-cycle.
type Driver struct {
	clock   gpio.Line
	channel Channel
	gainA   int

	readyPolls        int
	readyPollInterval time.Duration
	settle            time.Duration
}

func newDriver(clock gpio.Line, ch Channel, gainA int) (*Driver, error) {
	if err := validateConfig(ch, gainA); err != nil {
		return nil, err
	}
	return &Driver{
		clock:             clock,
		channel:           ch,
		gainA:             gainA,
		readyPolls:        defaultReadyPolls,
		readyPollInterval: defaultReadyPollInterval,
		settle:            settleTime,
	}, nil
}

// SetConfig changes the channel/gain selection. The HX711 applies selection
// one cycle in arrears: the new configuration is clocked out at the end of
// the next cycle and takes effect on the one after.
func (d *Driver) SetConfig(ch Channel, gainA int) error {
	if err := validateConfig(ch, gainA); err != nil {
		return err
	}
	d.channel = ch
	d.gainA = gainA
	return nil
}

// Config returns the current channel/gain selection.
func (d *Driver) Config() (Channel, int) {
	return d.channel, d.gainA
}

// cyclePulses is the total clock pulses in one read cycle.
func (d *Driver) cyclePulses() int {
	return framePulses + configPulses(d.channel, d.gainA)
}

// ReadCycle performs one synchronized read across the devices. Per-device
// failures are recorded on the devices, never returned: an error return means
// the clock line itself failed. Under allOrNothing the whole round is skipped
// unless every device is ready.
func (d *Driver) ReadCycle(devices []*Device, allOrNothing bool) error {
	if len(devices) == 0 {
		return fmt.Errorf("hx711: read cycle with no devices")
	}

	if err := d.clock.SetValue(gpio.Low); err != nil {
		return fmt.Errorf("idle clock: %w", err)
	}
	for _, dev := range devices {
		dev.beginFrame()
	}

	allReady := d.waitReady(devices)
	if !allReady && allOrNothing {
		for _, dev := range devices {
			dev.fail(ErrNotReady)
		}
		return nil
	}

	active := devices[:0:0]
	for _, dev := range devices {
		if dev.ready {
			active = append(active, dev)
		} else {
			dev.fail(ErrTimeout)
		}
	}
	if len(active) == 0 {
		return nil
	}

	// 24 data pulses, sampling every active device while the clock is high.
	// The sampled bit is bit 23-i of the frame.
	for i := 0; i < framePulses; i++ {
		long, err := d.pulse(func() {
			for _, dev := range active {
				if err := dev.sampleBit(); err != nil {
					dev.ready = false
					dev.fail(fmt.Errorf("sample bit %d: %w", i, err))
				}
			}
		})
		if err != nil {
			return fmt.Errorf("data pulse %d: %w", i+1, err)
		}
		if long {
			// The chips powered down mid-frame; this round is lost for
			// everyone on the clock.
			log.Printf("hx711: clock pulse exceeded %v, dropping round", maxPulseHigh)
			for _, dev := range active {
				if dev.ready {
					dev.ready = false
					dev.fail(ErrNotReady)
				}
			}
			return nil
		}

		n := 0
		for _, dev := range active {
			if dev.ready {
				active[n] = dev
				n++
			}
		}
		active = active[:n]
		if len(active) == 0 {
			return nil
		}
	}

	for _, dev := range active {
		dev.finishFrame()
	}

	return d.writeConfig()
}

// writeConfig issues the channel/gain selection pulses for the next cycle.
func (d *Driver) writeConfig() error {
	for i := 0; i < configPulses(d.channel, d.gainA); i++ {
		long, err := d.pulse(nil)
		if err != nil {
			return fmt.Errorf("config pulse %d: %w", i+1, err)
		}
		if long {
			log.Printf("hx711: config pulse exceeded %v, chips power-cycled", maxPulseHigh)
			return nil
		}
	}
	return nil
}

// waitReady polls the data lines until every device has signalled a pending
// conversion, bounded by readyPolls iterations of readyPollInterval.
// Readiness latches per device, so a device that went ready on an early poll
// stays counted.
func (d *Driver) waitReady(devices []*Device) bool {
	for i := 0; i < d.readyPolls; i++ {
		all := true
		for _, dev := range devices {
			if !dev.pollReady() {
				all = false
			}
		}
		if all {
			return true
		}
		time.Sleep(d.readyPollInterval)
	}
	return false
}

// pulse raises the clock, runs the sampling callback while it is high, lowers
// it again, and reports whether the high phase lasted long enough to power
// the chips down.
func (d *Driver) pulse(while func()) (long bool, err error) {
	start := time.Now()
	if err := d.clock.SetValue(gpio.High); err != nil {
		return false, fmt.Errorf("clock high: %w", err)
	}
	if while != nil {
		while()
	}
	if err := d.clock.SetValue(gpio.Low); err != nil {
		return false, fmt.Errorf("clock low: %w", err)
	}
	return time.Since(start) >= maxPulseHigh, nil
}

// PowerDown holds the clock high past the chip's 60us threshold, turning off
// every device on the line.
func (d *Driver) PowerDown() error {
	if err := d.clock.SetValue(gpio.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	if err := d.clock.SetValue(gpio.High); err != nil {
		return fmt.Errorf("clock high: %w", err)
	}
	time.Sleep(powerDownHold)
	return nil
}

// PowerUp returns the clock low, runs one cycle so the configured
// channel/gain is latched for subsequent reads, and waits out the datasheet
// settling time. After a power cycle the chip defaults to channel A gain 128,
// so the latching cycle's frame is discarded.
func (d *Driver) PowerUp(devices []*Device, allOrNothing bool) error {
	if err := d.clock.SetValue(gpio.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	if err := d.ReadCycle(devices, allOrNothing); err != nil {
		return err
	}
	time.Sleep(d.settle)
	return nil
}
