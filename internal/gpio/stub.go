//go:build !linux

package gpio

import "errors"

// RealPort is not available on non-Linux platforms.
type RealPort struct{}

// NewRealPort returns an error on non-Linux platforms.
func NewRealPort(chipName string, clockPin int, dataPins []int) (*RealPort, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Clock is not implemented on non-Linux platforms.
func (p *RealPort) Clock() Line { return nil }

// Data is not implemented on non-Linux platforms.
func (p *RealPort) Data() []Line { return nil }

// Close is not implemented on non-Linux platforms.
func (p *RealPort) Close() error { return nil }
