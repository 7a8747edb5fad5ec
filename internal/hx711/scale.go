// Package hx711 drives one or more HX711 24-bit ADCs over a shared clock
// line and per-chip data lines, producing calibrated weight readings. All
// chips on one clock are read within the same cycle so their timebases stay
// aligned, and they necessarily share one channel/gain configuration per
// round.
//
// The package is single-threaded by design: the protocol depends on strictly
// ordered clock pulses, so a Scale must not be used from multiple goroutines.
package hx711

import (
	"fmt"
	"time"

	"github.com/james-e-morris/hx711-multi/internal/gpio"
)

const (
	minReadings = 1
	maxReadings = 10000

	defaultZeroRetries = 10
)

// Measurement is one device's reduced reading. Valid is false when nothing
// survived filtering; an absent measurement is never reported as zero.
type Measurement struct {
	Value float64
	Valid bool
}

// Options configures a Scale. Zero values select the defaults noted per
// field.
type Options struct {
	// Channel is the input channel, A or B. Default A.
	Channel Channel

	// GainA is the channel A gain, 128 or 64. Default 128. Channel B is
	// fixed at gain 32 by the hardware.
	GainA int

	// AllOrNothing invalidates a whole batch when any one device fails to
	// produce a reading. When false, devices report independently.
	AllOrNothing bool

	// Filter tunes the bad-data rejection. Default DefaultFilter().
	Filter Filter

	// ZeroRetries bounds the read attempts when zeroing. Default 10.
	ZeroRetries int

	// ReadyPolls and ReadyPollInterval bound the wait for conversions at the
	// start of each cycle. Defaults 20 and 10ms (two conversion periods at
	// the chip's 10Hz rate).
	ReadyPolls        int
	ReadyPollInterval time.Duration

	// SettleTime overrides the 400ms datasheet settling wait after power-up.
	SettleTime time.Duration
}

// Scale owns a collection of HX711 devices sharing one clock line and
// exposes read, zero, and calibration operations over them.
type Scale struct {
	port    gpio.Port
	driver  *Driver
	devices []*Device

	allOrNothing bool
	filter       Filter
	zeroRetries  int

	lastDeltas []Measurement
}

// New builds a Scale over the port's lines: one device per data line, one
// driver on the clock. The port must outlive the scale.
func New(port gpio.Port, opts Options) (*Scale, error) {
	lines := port.Data()
	if len(lines) == 0 {
		return nil, fmt.Errorf("hx711: no data lines")
	}

	if opts.Channel == "" {
		opts.Channel = ChannelA
	}
	if opts.GainA == 0 {
		opts.GainA = 128
	}
	if opts.Filter == (Filter{}) {
		opts.Filter = DefaultFilter()
	}
	if opts.ZeroRetries == 0 {
		opts.ZeroRetries = defaultZeroRetries
	}

	driver, err := newDriver(port.Clock(), opts.Channel, opts.GainA)
	if err != nil {
		return nil, err
	}
	if opts.ReadyPolls > 0 {
		driver.readyPolls = opts.ReadyPolls
	}
	if opts.ReadyPollInterval > 0 {
		driver.readyPollInterval = opts.ReadyPollInterval
	}
	if opts.SettleTime > 0 {
		driver.settle = opts.SettleTime
	}

	s := &Scale{
		port:         port,
		driver:       driver,
		allOrNothing: opts.AllOrNothing,
		filter:       opts.Filter,
		zeroRetries:  opts.ZeroRetries,
	}
	for _, line := range lines {
		s.devices = append(s.devices, newDevice(line))
	}
	return s, nil
}

// DeviceCount returns the number of devices on the scale.
func (s *Scale) DeviceCount() int {
	return len(s.devices)
}

// Devices returns the scale's devices in data-line order.
func (s *Scale) Devices() []*Device {
	return s.devices
}

// Config returns the current channel/gain selection.
func (s *Scale) Config() (Channel, int) {
	return s.driver.Config()
}

// Reset power-cycles every device on the clock line and clears stale read
// state. The power-up includes one configuration-latching cycle and the
// datasheet settling wait.
func (s *Scale) Reset() error {
	if err := s.driver.PowerDown(); err != nil {
		return fmt.Errorf("power down: %w", err)
	}
	if err := s.driver.PowerUp(s.devices, s.allOrNothing); err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	for _, dev := range s.devices {
		dev.beginSet()
	}
	s.lastDeltas = nil
	return nil
}

// SetChannelGain reconfigures the input channel and channel A gain. The chip
// applies selection one cycle in arrears, so one throwaway cycle is run here
// to latch the new configuration before the next measurement.
func (s *Scale) SetChannelGain(ch Channel, gainA int) error {
	if err := s.driver.SetConfig(ch, gainA); err != nil {
		return err
	}
	if err := s.driver.ReadCycle(s.devices, s.allOrNothing); err != nil {
		return fmt.Errorf("latch config: %w", err)
	}
	for _, dev := range s.devices {
		dev.beginSet()
	}
	s.lastDeltas = nil
	return nil
}

// measure runs readings cycles, reduces each device's reads through the
// filter, and applies the all-or-nothing batch policy. Results are filtered
// raw values with no zero offset applied.
func (s *Scale) measure(readings int) ([]Measurement, error) {
	for _, dev := range s.devices {
		dev.beginSet()
	}
	for i := 0; i < readings; i++ {
		if err := s.driver.ReadCycle(s.devices, s.allOrNothing); err != nil {
			return nil, fmt.Errorf("read cycle %d: %w", i+1, err)
		}
	}

	ms := make([]Measurement, len(s.devices))
	for i, dev := range s.devices {
		v, ok := s.filter.Reduce(dev.Reads)
		ms[i] = Measurement{Value: v, Valid: ok}
	}

	if s.allOrNothing {
		for _, m := range ms {
			if !m.Valid {
				for i := range ms {
					ms[i] = Measurement{}
				}
				break
			}
		}
	}
	return ms, nil
}

func checkReadings(readings int) error {
	if readings < minReadings || readings > maxReadings {
		return fmt.Errorf("hx711: readings to average must be in [%d, %d], got %d",
			minReadings, maxReadings, readings)
	}
	return nil
}

// ReadRaw performs readings cycles and returns each device's filtered raw
// value minus its zero offset. Offsets are not mutated. A device whose zero
// offset is unset reports an absent measurement.
func (s *Scale) ReadRaw(readings int) ([]Measurement, error) {
	if err := checkReadings(readings); err != nil {
		return nil, err
	}

	ms, err := s.measure(readings)
	if err != nil {
		return nil, err
	}
	for i, dev := range s.devices {
		if !ms[i].Valid || !dev.offsetOK {
			ms[i] = Measurement{}
			continue
		}
		ms[i].Value -= dev.zeroOffset
	}

	if s.allOrNothing {
		for _, m := range ms {
			if !m.Valid {
				for i := range ms {
					ms[i] = Measurement{}
				}
				break
			}
		}
	}

	s.lastDeltas = append([]Measurement(nil), ms...)
	return ms, nil
}

// Zero measures the unloaded baseline and sets each device's zero offset to
// the filtered raw average. Devices that fail to produce a measurement are
// retried up to the configured limit; a device still absent after that fails
// with ErrInsufficientData under all-or-nothing, otherwise its offset is
// marked unset (its subsequent reads report absent) while the others proceed.
func (s *Scale) Zero(readings int) error {
	if err := checkReadings(readings); err != nil {
		return err
	}

	best := make([]Measurement, len(s.devices))
	for attempt := 0; attempt < s.zeroRetries; attempt++ {
		ms, err := s.measure(readings)
		if err != nil {
			return err
		}
		allValid := true
		for i, m := range ms {
			if m.Valid {
				best[i] = m
			}
			if !best[i].Valid {
				allValid = false
			}
		}
		if allValid {
			break
		}
	}

	for i, m := range best {
		if !m.Valid && s.allOrNothing {
			return fmt.Errorf("zero device %d: %w", i, ErrInsufficientData)
		}
	}
	for i, dev := range s.devices {
		if best[i].Valid {
			dev.zeroOffset = best[i].Value
			dev.offsetOK = true
		} else {
			dev.offsetOK = false
		}
	}
	s.lastDeltas = nil
	return nil
}

// SetWeightMultiples assigns one calibration multiple per device,
// positionally. A length mismatch fails with ErrArityMismatch and mutates
// nothing.
func (s *Scale) SetWeightMultiples(multiples []float64) error {
	if len(multiples) != len(s.devices) {
		return fmt.Errorf("%w: got %d values for %d devices",
			ErrArityMismatch, len(multiples), len(s.devices))
	}
	for i, dev := range s.devices {
		dev.multiple = multiples[i]
	}
	return nil
}

// ReadWeight returns each device's offset-corrected reading divided by its
// weight multiple. With usePrev the last ReadRaw result is reused and no
// hardware I/O happens; readings is validated either way. A device reports
// absent when its raw delta is absent or its multiple is zero.
func (s *Scale) ReadWeight(readings int, usePrev bool) ([]Measurement, error) {
	if err := checkReadings(readings); err != nil {
		return nil, err
	}
	if !usePrev {
		if _, err := s.ReadRaw(readings); err != nil {
			return nil, err
		}
	}

	ms := make([]Measurement, len(s.devices))
	for i, dev := range s.devices {
		if i >= len(s.lastDeltas) || !s.lastDeltas[i].Valid || dev.multiple == 0 {
			continue
		}
		ms[i] = Measurement{Value: s.lastDeltas[i].Value / dev.multiple, Valid: true}
	}
	return ms, nil
}

// Close leaves the clock line low so attached hardware is not abandoned
// powered-down or mid-frame, then releases the port's lines.
func (s *Scale) Close() error {
	if err := s.port.Clock().SetValue(gpio.Low); err != nil {
		return fmt.Errorf("idle clock: %w", err)
	}
	return s.port.Close()
}
