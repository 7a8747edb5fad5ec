package hx711

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Operator supplies reference weights and paces the physical steps of a
// calibration run. Implementations range from a scripted sequence in tests
// to an interactive terminal prompt in the CLI; the fitting logic stays
// decoupled from any console I/O.
type Operator interface {
	// NextWeight returns the next known reference weight. ok is false when
	// there are no more weights.
	NextWeight() (weight float64, ok bool, err error)

	// Confirm blocks until the operator has performed the prompted step
	// (clearing the scale, placing a weight). An error aborts the run.
	Confirm(prompt string) error
}

// AutoOperator runs a calibration over a fixed weight sequence with no
// operator pacing. Suited to tests and rigs where weights are pre-placed.
type AutoOperator struct {
	Weights []float64
	next    int
}

// NextWeight returns the next weight in the sequence.
func (a *AutoOperator) NextWeight() (float64, bool, error) {
	if a.next >= len(a.Weights) {
		return 0, false, nil
	}
	w := a.Weights[a.next]
	a.next++
	return w, true, nil
}

// Confirm is a no-op.
func (a *AutoOperator) Confirm(string) error { return nil }

// Calibrator derives one weight multiple per device from reference weights.
// For each weight the scale is zeroed unloaded, the weight is placed, and the
// raw delta is recorded; the collected (weight, delta) pairs are then fitted
// per device.
type Calibrator struct {
	Scale *Scale

	// Readings is the number of cycles averaged per measurement. Default 10.
	Readings int
}

// calPoints collects one device's calibration pairs.
type calPoints struct {
	weights []float64
	deltas  []float64
}

// Run walks the operator through the calibration steps, fits a weight
// multiple per device, applies the multiples to the scale, and returns them.
//
// A single point fits as the direct ratio delta/weight; several points fit by
// least squares through the origin, which for collinear points reduces to the
// same ratio.
func (c *Calibrator) Run(op Operator) ([]float64, error) {
	readings := c.Readings
	if readings == 0 {
		readings = 10
	}

	points := make([]calPoints, c.Scale.DeviceCount())
	sawWeight := false

	for {
		weight, ok, err := op.NextWeight()
		if err != nil {
			return nil, fmt.Errorf("next weight: %w", err)
		}
		if !ok {
			break
		}
		sawWeight = true

		if err := op.Confirm("clear the scale"); err != nil {
			return nil, err
		}
		if err := c.Scale.Zero(readings); err != nil {
			return nil, fmt.Errorf("zero: %w", err)
		}

		if err := op.Confirm(fmt.Sprintf("place %v on the scale", weight)); err != nil {
			return nil, err
		}
		deltas, err := c.Scale.ReadRaw(readings)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		for i, m := range deltas {
			if !m.Valid {
				continue
			}
			points[i].weights = append(points[i].weights, weight)
			points[i].deltas = append(points[i].deltas, m.Value)
		}
	}

	if !sawWeight {
		return nil, ErrNoCalibrationData
	}

	multiples := make([]float64, len(points))
	for i, p := range points {
		m, err := fitOrigin(p.weights, p.deltas)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		multiples[i] = m
	}

	if err := c.Scale.SetWeightMultiples(multiples); err != nil {
		return nil, err
	}
	return multiples, nil
}

// fitOrigin fits delta = multiple * weight through the origin by least
// squares: multiple = sum(w*d) / sum(w*w).
func fitOrigin(weights, deltas []float64) (float64, error) {
	switch len(weights) {
	case 0:
		return 0, ErrInsufficientData
	case 1:
		if weights[0] == 0 {
			return 0, fmt.Errorf("%w: reference weight is zero", ErrInsufficientData)
		}
		return deltas[0] / weights[0], nil
	}
	ww := floats.Dot(weights, weights)
	if ww == 0 {
		return 0, fmt.Errorf("%w: reference weights are all zero", ErrInsufficientData)
	}
	return floats.Dot(weights, deltas) / ww, nil
}
