package hx711

import (
	"github.com/james-e-morris/hx711-multi/internal/gpio"
)

// Frames the HX711 can emit that are not measurements: the two saturation
// boundaries and the all-one/all-zero patterns seen with broken wiring.
const (
	frameMin     = 0x800000 // -2^23, negative saturation
	frameMax     = 0x7FFFFF // 2^23-1, positive saturation
	frameAllOnes = 0xFFFFFF
	frameAllZero = 0x000000
)

// ReadResult is one decoded reading from one device in one clock cycle.
type ReadResult struct {
	Value int32
	Err   error
}

// Device holds the per-chip state for one HX711 on the shared clock line.
type Device struct {
	line gpio.Line

	// RawReads keeps the raw two's-complement frames of the current set of
	// reads, for diagnostics.
	RawReads []uint32

	// Reads keeps the decoded results of the current set of reads, one entry
	// per completed cycle.
	Reads []ReadResult

	zeroOffset float64
	offsetOK   bool
	multiple   float64

	ready bool
	frame uint32
}

func newDevice(line gpio.Line) *Device {
	return &Device{
		line:     line,
		offsetOK: true, // offset starts at a valid 0 baseline
		multiple: 1.0,
	}
}

// decodeFrame interprets a 24-bit frame as two's complement. Saturated and
// degenerate frames are flagged rather than returned as values.
func decodeFrame(raw uint32) (int32, error) {
	switch raw {
	case frameMin, frameMax, frameAllOnes, frameAllZero:
		return 0, ErrSaturated
	}
	if raw&0x800000 != 0 {
		return int32(raw) - 1<<24, nil
	}
	return int32(raw), nil
}

// beginSet clears the accumulated reads before a new set of cycles.
func (d *Device) beginSet() {
	d.RawReads = nil
	d.Reads = nil
}

// beginFrame resets the per-cycle state.
func (d *Device) beginFrame() {
	d.ready = false
	d.frame = 0
}

// sampleBit reads the data line and shifts the bit into the current frame.
func (d *Device) sampleBit() error {
	v, err := d.line.Value()
	if err != nil {
		return err
	}
	d.frame = d.frame<<1 | uint32(v)
	return nil
}

// finishFrame decodes the assembled frame and records the result.
func (d *Device) finishFrame() {
	d.RawReads = append(d.RawReads, d.frame)
	v, err := decodeFrame(d.frame)
	d.Reads = append(d.Reads, ReadResult{Value: v, Err: err})
}

// fail records a failed cycle for this device.
func (d *Device) fail(err error) {
	d.Reads = append(d.Reads, ReadResult{Err: err})
}

// pollReady samples the data line once; low means a conversion is waiting.
// Readiness latches for the remainder of the round.
func (d *Device) pollReady() bool {
	if d.ready {
		return true
	}
	v, err := d.line.Value()
	d.ready = err == nil && v == gpio.Low
	return d.ready
}

// ZeroOffset returns the device's zero offset and whether it is set.
func (d *Device) ZeroOffset() (float64, bool) {
	return d.zeroOffset, d.offsetOK
}

// WeightMultiple returns the device's calibration scale factor.
func (d *Device) WeightMultiple() float64 {
	return d.multiple
}
