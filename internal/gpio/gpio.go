// Package gpio provides single-line GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation plays back scripted waveforms for testing.
package gpio

import (
	"errors"
	"time"
)

// Level is the logical level of a signal line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// ErrTimeout is returned by WaitWhile when the line never left the level
// within the bound.
var ErrTimeout = errors.New("gpio: wait timeout")

// Line is a bidirectional signal line with microsecond-class polling.
type Line interface {
	// SetOutput switches the line to output mode.
	SetOutput() error

	// SetInput releases the line to input mode.
	SetInput() error

	// Write drives the line. Only valid in output mode.
	Write(level Level) error

	// Read samples the line. Only valid in input mode.
	Read() (Level, error)

	// WaitWhile spins until the line differs from level and returns the time
	// spent. If the line is still at level after timeout it returns
	// (timeout, ErrTimeout).
	WaitWhile(level Level, timeout time.Duration) (time.Duration, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinRefrigerator = 27
	DefaultPinFreezer      = 17
)

// spinWhile polls read until it returns something other than level or the
// timeout elapses. It never sleeps; callers pin the goroutine to an OS thread
// when timing matters.
func spinWhile(read func() (Level, error), now func() time.Time, level Level, timeout time.Duration) (time.Duration, error) {
	start := now()
	for {
		v, err := read()
		if err != nil {
			return now().Sub(start), err
		}
		elapsed := now().Sub(start)
		if v != level {
			return elapsed, nil
		}
		if elapsed >= timeout {
			return timeout, ErrTimeout
		}
	}
}
