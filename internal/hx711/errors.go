package hx711

import "errors"

// Read errors are per-cycle and per-device. They are recoverable: the sample
// filter absorbs them and reports an absent measurement, it never raises them.
var (
	// ErrNotReady means the device's data line was high when the round began,
	// or the round was skipped because not every device was ready under the
	// all-or-nothing policy.
	ErrNotReady = errors.New("hx711: device not ready")

	// ErrTimeout means the data line never went low within the ready-wait
	// window.
	ErrTimeout = errors.New("hx711: timed out waiting for device ready")

	// ErrSaturated means the frame decoded to a saturation boundary or an
	// all-zero/all-one pattern, which indicates a wiring or range fault
	// rather than a measurement.
	ErrSaturated = errors.New("hx711: saturated or invalid frame")
)

// Configuration errors are caller mistakes, raised synchronously by the call
// that introduced the invalid state.
var (
	// ErrArityMismatch means a positional per-device argument list did not
	// match the number of devices.
	ErrArityMismatch = errors.New("hx711: value count does not match device count")

	// ErrInvalidGain means a channel A gain other than 128 or 64.
	ErrInvalidGain = errors.New("hx711: channel A gain must be 128 or 64")

	// ErrInvalidChannel means a channel other than A or B.
	ErrInvalidChannel = errors.New("hx711: channel must be A or B")
)

// Calibration errors are surfaced to the caller without automatic retry;
// recovering requires operator intervention.
var (
	// ErrInsufficientData means a device produced no usable filtered
	// measurement during zeroing or calibration.
	ErrInsufficientData = errors.New("hx711: insufficient data")

	// ErrNoCalibrationData means calibration ran with no reference weights.
	ErrNoCalibrationData = errors.New("hx711: no calibration data")
)
