package hx711

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james-e-morris/hx711-multi/internal/gpio"
)

// recordingOperator scripts a weight sequence and records the prompts it was
// asked to confirm.
type recordingOperator struct {
	weights []float64
	next    int

	Prompts    []string
	ConfirmErr error
}

func (r *recordingOperator) NextWeight() (float64, bool, error) {
	if r.next >= len(r.weights) {
		return 0, false, nil
	}
	w := r.weights[r.next]
	r.next++
	return w, true, nil
}

func (r *recordingOperator) Confirm(prompt string) error {
	if r.ConfirmErr != nil {
		return r.ConfirmErr
	}
	r.Prompts = append(r.Prompts, prompt)
	return nil
}

func TestCalibrationTwoPointFit(t *testing.T) {
	// Known weights 10 and 20 with measured deltas 500 and 1000: the origin
	// least-squares fit reduces to the exact ratio 50 for collinear points.
	chip := gpio.NewFakeChip(
		100, 600, // zero at 100, weight 10 reads 600 -> delta 500
		100, 1100, // zero at 100, weight 20 reads 1100 -> delta 1000
	)
	s, _ := newTestScale(t, fastOptions(), chip)

	cal := &Calibrator{Scale: s, Readings: 1}
	op := &recordingOperator{weights: []float64{10, 20}}

	multiples, err := cal.Run(op)
	require.NoError(t, err)
	require.Len(t, multiples, 1)
	assert.Equal(t, 50.0, multiples[0])

	// The fitted multiple was applied to the scale.
	assert.Equal(t, 50.0, s.Devices()[0].WeightMultiple())

	// Two prompts per reference weight: clear, then place.
	require.Len(t, op.Prompts, 4)
	assert.Equal(t, "clear the scale", op.Prompts[0])
	assert.Contains(t, op.Prompts[1], "10")
	assert.Equal(t, "clear the scale", op.Prompts[2])
	assert.Contains(t, op.Prompts[3], "20")
}

func TestCalibrationSinglePointRatio(t *testing.T) {
	chip := gpio.NewFakeChip(100, 2600) // zero at 100, delta 2500
	s, _ := newTestScale(t, fastOptions(), chip)

	cal := &Calibrator{Scale: s, Readings: 1}
	multiples, err := cal.Run(&AutoOperator{Weights: []float64{5}})
	require.NoError(t, err)
	assert.Equal(t, 500.0, multiples[0])
}

func TestCalibrationMultiDevice(t *testing.T) {
	a := gpio.NewFakeChip(100, 600)   // delta 500
	b := gpio.NewFakeChip(200, 1200) // delta 1000
	s, _ := newTestScale(t, fastOptions(), a, b)

	cal := &Calibrator{Scale: s, Readings: 1}
	multiples, err := cal.Run(&AutoOperator{Weights: []float64{10}})
	require.NoError(t, err)
	require.Len(t, multiples, 2)
	assert.Equal(t, 50.0, multiples[0])
	assert.Equal(t, 100.0, multiples[1])
}

func TestCalibrationNoWeights(t *testing.T) {
	s, _ := newTestScale(t, fastOptions(), gpio.NewFakeChip(0))
	cal := &Calibrator{Scale: s}
	_, err := cal.Run(&AutoOperator{})
	assert.ErrorIs(t, err, ErrNoCalibrationData)
}

func TestCalibrationConfirmAbort(t *testing.T) {
	s, _ := newTestScale(t, fastOptions(), gpio.NewFakeChip(0))
	cal := &Calibrator{Scale: s, Readings: 1}
	op := &recordingOperator{weights: []float64{10}}
	op.ConfirmErr = errors.New("operator aborted")

	_, err := cal.Run(op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
}

func TestFitOrigin(t *testing.T) {
	m, err := fitOrigin([]float64{10, 20}, []float64{500, 1000})
	require.NoError(t, err)
	assert.Equal(t, 50.0, m)

	// Noncollinear points: least squares, not a ratio of any single pair.
	m, err = fitOrigin([]float64{1, 2}, []float64{10, 30})
	require.NoError(t, err)
	assert.Equal(t, 14.0, m)

	_, err = fitOrigin(nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = fitOrigin([]float64{0}, []float64{100})
	assert.ErrorIs(t, err, ErrInsufficientData)
}
