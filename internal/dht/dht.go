// Package dht decodes DHT22-style single-wire temperature/humidity transfers.
//
// A transfer is: host pulls the line low for at least 18 ms and releases it;
// the sensor answers low then high (~80 µs each); then 40 bits follow, each a
// ~50 µs low start marker and a high pulse whose width carries the bit
// (~26 µs = 0, ~70 µs = 1). The five bytes are humidity hi/lo, temperature
// hi/lo and a checksum equal to the truncated sum of the first four.
//
// Every wait is bounded, so a missing or stuck sensor costs at most the sum of
// the configured timeouts.
package dht

import (
	"errors"
	"time"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
)

// Number of bits in one transfer.
const FrameBits = len(logic.Frame{}) * 8

// Timing holds the protocol bounds. All fields are optional.
type Timing struct {
	// Wake is how long the host holds the line low to request a reading.
	// Default 18 ms.
	Wake time.Duration
	// HandshakeTimeout bounds each of the three handshake waits. Default 1 ms.
	HandshakeTimeout time.Duration
	// BitStartTimeout bounds the low start marker before each bit. Default 1 ms.
	BitStartTimeout time.Duration
	// BitMaxWidth caps the high pulse of a bit; reaching it marks the bit
	// malformed. Default 1 ms.
	BitMaxWidth time.Duration
	// Threshold separates a short (0) from a long (1) high pulse:
	// bit = width > Threshold. Default 30 µs.
	Threshold time.Duration
}

// DefaultTiming returns the datasheet-derived defaults.
func DefaultTiming() Timing {
	return Timing{
		Wake:             18 * time.Millisecond,
		HandshakeTimeout: time.Millisecond,
		BitStartTimeout:  time.Millisecond,
		BitMaxWidth:      time.Millisecond,
		Threshold:        30 * time.Microsecond,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.Wake <= 0 {
		t.Wake = d.Wake
	}
	if t.HandshakeTimeout <= 0 {
		t.HandshakeTimeout = d.HandshakeTimeout
	}
	if t.BitStartTimeout <= 0 {
		t.BitStartTimeout = d.BitStartTimeout
	}
	if t.BitMaxWidth <= 0 {
		t.BitMaxWidth = d.BitMaxWidth
	}
	if t.Threshold <= 0 {
		t.Threshold = d.Threshold
	}
	return t
}

// MaxDuration is the worst-case time one Read can take with these bounds.
func (t Timing) MaxDuration() time.Duration {
	t = t.withDefaults()
	return t.Wake + 3*t.HandshakeTimeout + time.Duration(FrameBits)*(t.BitStartTimeout+t.BitMaxWidth)
}

// Decoder runs the request/handshake/bit-read/validate sequence on a line.
// A Decoder holds no per-read state and may be shared by concurrent reads on
// different lines.
type Decoder struct {
	timing Timing
	sleep  func(time.Duration)
}

// New creates a Decoder. Zero fields in t take their defaults.
func New(t Timing) *Decoder {
	return &Decoder{timing: t.withDefaults(), sleep: time.Sleep}
}

// Timing returns the effective timing.
func (d *Decoder) Timing() Timing { return d.timing }

// Read performs one complete transfer on line. It either returns a valid
// reading or a *DecodeError; it never retries.
func (d *Decoder) Read(line gpio.Line) (logic.Reading, error) {
	if err := d.request(line); err != nil {
		return logic.Reading{}, err
	}
	if err := d.handshake(line); err != nil {
		return logic.Reading{}, err
	}
	frame, err := d.readBits(line)
	if err != nil {
		return logic.Reading{}, err
	}
	return Decode(frame)
}

func (d *Decoder) request(line gpio.Line) error {
	fault := func(err error) error {
		return &DecodeError{Kind: logic.LineFault, Phase: PhaseRequest, Step: -1, Err: err}
	}
	if err := line.SetOutput(); err != nil {
		return fault(err)
	}
	if err := line.Write(gpio.Low); err != nil {
		return fault(err)
	}
	d.sleep(d.timing.Wake)
	if err := line.Write(gpio.High); err != nil {
		return fault(err)
	}
	if err := line.SetInput(); err != nil {
		return fault(err)
	}
	return nil
}

// handshake waits out the host release (high), the sensor's response low and
// its response high. The first bit's start marker follows.
func (d *Decoder) handshake(line gpio.Line) error {
	steps := [3]gpio.Level{gpio.High, gpio.Low, gpio.High}
	for i, level := range steps {
		if _, err := line.WaitWhile(level, d.timing.HandshakeTimeout); err != nil {
			if errors.Is(err, gpio.ErrTimeout) {
				return &DecodeError{Kind: logic.NoResponse, Phase: PhaseHandshake, Step: i}
			}
			return &DecodeError{Kind: logic.LineFault, Phase: PhaseHandshake, Step: i, Err: err}
		}
	}
	return nil
}

func (d *Decoder) readBits(line gpio.Line) (logic.Frame, error) {
	var frame logic.Frame
	for n := 0; n < FrameBits; n++ {
		if _, err := line.WaitWhile(gpio.Low, d.timing.BitStartTimeout); err != nil {
			return frame, bitError(n, err)
		}
		width, err := line.WaitWhile(gpio.High, d.timing.BitMaxWidth)
		if err != nil {
			return frame, bitError(n, err)
		}
		frame[n/8] |= DecodeBit(width, d.timing.Threshold) << uint(7-n%8)
	}
	return frame, nil
}

// bitError classifies a failed wait inside the bit stream. A line stuck at
// either level mid-frame is a malformed bit, not a guessed value.
func bitError(n int, err error) error {
	if errors.Is(err, gpio.ErrTimeout) {
		return &DecodeError{Kind: logic.MalformedBit, Phase: PhaseBits, Step: n}
	}
	return &DecodeError{Kind: logic.LineFault, Phase: PhaseBits, Step: n, Err: err}
}

// DecodeBit maps a high-pulse width to a bit: 1 iff width > threshold.
func DecodeBit(width, threshold time.Duration) byte {
	if width > threshold {
		return 1
	}
	return 0
}

// Checksum returns the truncated sum of the four data bytes.
func Checksum(f logic.Frame) byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Decode validates the checksum and converts the frame to a reading.
// Humidity is unsigned tenths of a percent. Temperature is tenths of a
// degree in sign-magnitude form: bit 15 set means below zero.
func Decode(f logic.Frame) (logic.Reading, error) {
	if Checksum(f) != f[4] {
		return logic.Reading{}, &DecodeError{Kind: logic.ChecksumMismatch, Phase: PhaseValidate, Step: -1, Frame: f}
	}
	humid := uint(f[0])<<8 | uint(f[1])
	temp := int(f[2]&0x7f)<<8 | int(f[3])
	if f[2]&0x80 != 0 {
		temp = -temp
	}
	return logic.Reading{
		TemperatureTenths: temp,
		HumidityTenths:    humid,
		Valid:             true,
	}, nil
}

// Encode builds a frame with a correct checksum. It is the inverse of Decode
// and is used to script sensor waveforms.
func Encode(r logic.Reading) logic.Frame {
	t := r.TemperatureTenths
	var sign byte
	if t < 0 {
		sign = 0x80
		t = -t
	}
	f := logic.Frame{
		byte(r.HumidityTenths >> 8), byte(r.HumidityTenths),
		byte(t>>8)&0x7f | sign, byte(t),
	}
	f[4] = Checksum(f)
	return f
}
