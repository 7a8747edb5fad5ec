//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPort owns GPIO lines requested from a Linux GPIO character device.
type RealPort struct {
	chip  *gpiocdev.Chip
	clock *gpiocdev.Line
	data  []*gpiocdev.Line
}

// NewRealPort requests the clock pin as an output (initially low, the
// protocol's idle state) and each data pin as an input.
func NewRealPort(chipName string, clockPin int, dataPins []int) (*RealPort, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	clock, err := chip.RequestLine(clockPin, gpiocdev.AsOutput(Low))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request clock pin %d: %w", clockPin, err)
	}

	p := &RealPort{chip: chip, clock: clock}
	for _, pin := range dataPins {
		line, err := chip.RequestLine(pin, gpiocdev.AsInput)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request data pin %d: %w", pin, err)
		}
		p.data = append(p.data, line)
	}

	return p, nil
}

// Clock returns the shared PD_SCK output line.
func (p *RealPort) Clock() Line {
	return p.clock
}

// Data returns the DOUT input lines in construction order.
func (p *RealPort) Data() []Line {
	lines := make([]Line, len(p.data))
	for i, l := range p.data {
		lines[i] = l
	}
	return lines
}

// Close drives the clock low before releasing the lines so attached chips are
// left powered up and idle rather than mid-frame.
func (p *RealPort) Close() error {
	var errs []error

	if p.clock != nil {
		if err := p.clock.SetValue(Low); err != nil {
			errs = append(errs, fmt.Errorf("idle clock: %w", err))
		}
		if err := p.clock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close clock: %w", err))
		}
	}
	for i, line := range p.data {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data line %d: %w", i, err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
