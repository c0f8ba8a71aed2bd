package gpio

import "time"

// Segment is one stretch of constant level in a scripted waveform.
type Segment struct {
	Level    Level
	Duration time.Duration
}

// FakeLine is a test double that plays back a scripted waveform on a virtual
// clock. Playback starts when the line is switched to input; WaitWhile
// advances the virtual clock instead of spinning.
type FakeLine struct {
	// Script is played back from the start on every SetInput.
	Script []Segment

	// Idle is the level after the script ends (and before playback starts).
	Idle Level

	// Writes contains every level driven while in output mode.
	Writes []Level

	// Output reports whether the line is currently in output mode.
	Output bool

	// Releases counts SetInput calls.
	Releases int

	// Closed tracks if Close was called.
	Closed bool

	// IOError, if set, is returned by every line operation.
	IOError error

	seg    int
	offset time.Duration
}

// NewFakeLine creates a FakeLine idling high with the given script.
func NewFakeLine(script []Segment) *FakeLine {
	return &FakeLine{Script: script, Idle: High}
}

// SetOutput switches to output mode.
func (f *FakeLine) SetOutput() error {
	if f.IOError != nil {
		return f.IOError
	}
	f.Output = true
	return nil
}

// SetInput switches to input mode and rewinds the script.
func (f *FakeLine) SetInput() error {
	if f.IOError != nil {
		return f.IOError
	}
	f.Output = false
	f.Releases++
	f.seg = 0
	f.offset = 0
	return nil
}

// Write records the driven level.
func (f *FakeLine) Write(level Level) error {
	if f.IOError != nil {
		return f.IOError
	}
	f.Writes = append(f.Writes, level)
	return nil
}

// Read returns the level at the current playback position.
func (f *FakeLine) Read() (Level, error) {
	if f.IOError != nil {
		return Low, f.IOError
	}
	if f.Output || f.seg >= len(f.Script) {
		return f.Idle, nil
	}
	return f.Script[f.seg].Level, nil
}

// WaitWhile advances playback past every segment at level, up to timeout.
func (f *FakeLine) WaitWhile(level Level, timeout time.Duration) (time.Duration, error) {
	if f.IOError != nil {
		return 0, f.IOError
	}
	var elapsed time.Duration
	for {
		cur, _ := f.Read()
		if cur != level {
			return elapsed, nil
		}
		if f.Output || f.seg >= len(f.Script) {
			// Stuck at idle forever.
			return timeout, ErrTimeout
		}
		remaining := f.Script[f.seg].Duration - f.offset
		if elapsed+remaining > timeout {
			f.offset += timeout - elapsed
			return timeout, ErrTimeout
		}
		elapsed += remaining
		f.seg++
		f.offset = 0
	}
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.Closed = true
	return nil
}

// Pulse widths of a DHT22 transfer as seen on the wire after the host
// releases the line.
const (
	HostRelease  = 30 * time.Microsecond
	ResponseLow  = 80 * time.Microsecond
	ResponseHigh = 80 * time.Microsecond
	BitLow       = 50 * time.Microsecond
	ZeroHigh     = 26 * time.Microsecond
	OneHigh      = 70 * time.Microsecond
)

// FrameWaveform returns the waveform a healthy sensor produces for frame:
// release, response low/high, then 40 bits MSB first, then a trailing low.
func FrameWaveform(frame [5]byte) []Segment {
	script := make([]Segment, 0, 3+2*40+1)
	script = append(script,
		Segment{High, HostRelease},
		Segment{Low, ResponseLow},
		Segment{High, ResponseHigh},
	)
	for _, b := range frame {
		for i := 7; i >= 0; i-- {
			width := ZeroHigh
			if b&(1<<uint(i)) != 0 {
				width = OneHigh
			}
			script = append(script, Segment{Low, BitLow}, Segment{High, width})
		}
	}
	return append(script, Segment{Low, BitLow})
}

// BitHighIndex returns the index in a FrameWaveform script of the high pulse
// carrying bit n (0..39).
func BitHighIndex(n int) int {
	return 3 + 2*n + 1
}
