//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine drives one sensor data pin through the Linux GPIO character device.
type RealLine struct {
	line   *gpiocdev.Line
	offset int
}

// NewRealLine requests the given BCM offset on chip (e.g. "gpiochip0").
// The line starts as an input with pull-up, which is the idle state of the
// sensor bus.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithConsumer("fridge-sensor"))
	if err != nil {
		return nil, fmt.Errorf("request pin %d on %s: %w", offset, chip, err)
	}
	return &RealLine{line: l, offset: offset}, nil
}

// SetOutput switches the line to output, initially driven high.
func (r *RealLine) SetOutput() error {
	if err := r.line.Reconfigure(gpiocdev.AsOutput(int(High))); err != nil {
		return fmt.Errorf("pin %d as output: %w", r.offset, err)
	}
	return nil
}

// SetInput releases the line back to input with pull-up.
func (r *RealLine) SetInput() error {
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		return fmt.Errorf("pin %d as input: %w", r.offset, err)
	}
	return nil
}

// Write drives the line to level.
func (r *RealLine) Write(level Level) error {
	if err := r.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", r.offset, err)
	}
	return nil
}

// Read samples the line.
func (r *RealLine) Read() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", r.offset, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// WaitWhile spins on the line value until it leaves level or timeout passes.
func (r *RealLine) WaitWhile(level Level, timeout time.Duration) (time.Duration, error) {
	return spinWhile(r.Read, time.Now, level, timeout)
}

// Close returns the pin to input with pull-up and releases it, so the bus is
// left idle-high for the next owner.
func (r *RealLine) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", r.offset, err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", r.offset, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
