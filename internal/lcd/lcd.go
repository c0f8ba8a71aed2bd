// Package lcd drives a 16x2 HD44780 character display behind a PCF8574 I2C
// backpack, in 4-bit mode.
//
// Each byte is sent as two nibbles. A nibble is written to the expander with
// the enable bit low, high, then low again; the controller latches on the
// falling edge.
package lcd

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// DefaultAddress is the usual PCF8574A backpack address.
const DefaultAddress = 0x3f

// PCF8574 pin mapping.
const (
	modeCommand byte = 0x00
	modeChar    byte = 0x01 // RS
	enable      byte = 0x04
	backlight   byte = 0x08
)

// HD44780 commands.
const (
	cmdClear = 0x01
	cmdHome  = 0x02
	Line1    = 0x80
	Line2    = 0xC0
)

// initSequence switches the controller to 4-bit, two-line mode with the
// cursor hidden and clears the screen.
var initSequence = []byte{0x33, 0x32, 0x06, 0x0C, 0x28, cmdClear}

// strobeDelay is the settle time around each enable edge.
const strobeDelay = 500 * time.Microsecond

// Bus is the I2C device the backpack sits on.
// periph.io's *i2c.Dev satisfies this interface.
type Bus interface {
	Tx(w, r []byte) error
}

// Display writes two text rows. It is owned by a single goroutine.
type Display struct {
	bus   Bus
	sleep func(time.Duration)
	buf   [1]byte
}

// New wraps bus. Call Init before the first Dispatch.
func New(bus Bus) *Display {
	return &Display{bus: bus, sleep: time.Sleep}
}

// Name identifies the sink in logs.
func (d *Display) Name() string { return "lcd" }

// Init runs the controller initialisation sequence.
func (d *Display) Init() error {
	for _, c := range initSequence {
		if err := d.command(c); err != nil {
			return fmt.Errorf("lcd init: %w", err)
		}
	}
	d.sleep(strobeDelay)
	return nil
}

// Clear blanks the screen and homes the cursor.
func (d *Display) Clear() error {
	if err := d.command(cmdClear); err != nil {
		return err
	}
	return d.command(cmdHome)
}

// WriteLine moves to row (Line1 or Line2) and writes s, truncated to the
// display width. Non-ASCII characters are shown as '?'.
func (d *Display) WriteLine(row byte, s string) error {
	if err := d.command(row); err != nil {
		return err
	}
	if len(s) > logic.DisplayWidth {
		s = s[:logic.DisplayWidth]
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e {
			c = '?'
		}
		if err := d.send(c, modeChar); err != nil {
			return err
		}
	}
	return nil
}

// Show clears the display and draws both rows.
func (d *Display) Show(line1, line2 string) error {
	var errs []error
	if err := d.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear: %w", err))
	}
	if err := d.WriteLine(Line1, line1); err != nil {
		errs = append(errs, fmt.Errorf("line 1: %w", err))
	}
	if err := d.WriteLine(Line2, line2); err != nil {
		errs = append(errs, fmt.Errorf("line 2: %w", err))
	}
	return errors.Join(errs...)
}

// Dispatch renders a batch: refrigerator on row 1, freezer on row 2.
func (d *Display) Dispatch(b logic.Batch) error {
	l1, l2 := logic.DisplayLines(b)
	return d.Show(l1, l2)
}

func (d *Display) command(c byte) error {
	return d.send(c, modeCommand)
}

func (d *Display) send(bits, mode byte) error {
	high := mode | bits&0xF0 | backlight
	low := mode | (bits<<4)&0xF0 | backlight
	if err := d.nibble(high); err != nil {
		return err
	}
	return d.nibble(low)
}

func (d *Display) nibble(v byte) error {
	if err := d.write(v); err != nil {
		return err
	}
	d.sleep(strobeDelay)
	if err := d.write(v | enable); err != nil {
		return err
	}
	d.sleep(strobeDelay)
	if err := d.write(v &^ enable); err != nil {
		return err
	}
	d.sleep(strobeDelay)
	return nil
}

func (d *Display) write(v byte) error {
	d.buf[0] = v
	return d.bus.Tx(d.buf[:], nil)
}
