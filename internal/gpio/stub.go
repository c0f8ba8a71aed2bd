//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// NewRealLine returns an error on non-Linux platforms.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *RealLine) SetOutput() error { return errors.New("gpio: not supported") }

func (r *RealLine) SetInput() error { return errors.New("gpio: not supported") }

func (r *RealLine) Write(level Level) error { return errors.New("gpio: not supported") }

func (r *RealLine) Read() (Level, error) { return Low, errors.New("gpio: not supported") }

func (r *RealLine) WaitWhile(level Level, timeout time.Duration) (time.Duration, error) {
	return 0, errors.New("gpio: not supported")
}

// Close is a no-op on non-Linux platforms.
func (r *RealLine) Close() error {
	return nil
}
