// Package gpio provides the digital line capability the HX711 protocol is
// driven through. The real implementation uses the Linux GPIO character
// device. The fake implementation simulates HX711 chips for testing without
// hardware.
package gpio

import "errors"

var errInputLine = errors.New("gpio: cannot set value on an input line")

// Level values for Line.Value and Line.SetValue.
const (
	Low  = 0
	High = 1
)

// Line is a single GPIO line.
type Line interface {
	// Value returns the current logic level of the line (Low or High).
	Value() (int, error)

	// SetValue drives the line to the given level. Only valid for output
	// lines.
	SetValue(value int) error

	// Close releases the line.
	Close() error
}

// Port bundles the lines for a chain of HX711 chips: one shared clock output
// and one data input per chip. The port hands out already-requested lines;
// pin numbering and physical layout are resolved here and nowhere else.
type Port interface {
	// Clock returns the shared PD_SCK output line.
	Clock() Line

	// Data returns the DOUT input lines, one per chip, in construction order.
	Data() []Line

	// Close releases all lines.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"
