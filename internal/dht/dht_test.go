package dht

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
)

// newTestDecoder returns a decoder that records the wake sleep instead of
// sleeping.
func newTestDecoder(t *testing.T, timing Timing) (*Decoder, *[]time.Duration) {
	t.Helper()
	d := New(timing)
	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }
	return d, &slept
}

func TestDecodeExampleFrame(t *testing.T) {
	r, err := Decode(logic.Frame{0x02, 0x8C, 0x01, 0x11, 0xA0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Valid {
		t.Error("expected valid reading")
	}
	if r.HumidityTenths != 652 {
		t.Errorf("humidity: got %d, want 652", r.HumidityTenths)
	}
	if r.TemperatureTenths != 273 {
		t.Errorf("temperature: got %d, want 273", r.TemperatureTenths)
	}
	if r.Humidity() != 65.2 || r.Temperature() != 27.3 {
		t.Errorf("decimal: got %.1f%% %.1fC", r.Humidity(), r.Temperature())
	}
}

func TestDecodeExampleFrameBadChecksum(t *testing.T) {
	r, err := Decode(logic.Frame{0x02, 0x8C, 0x01, 0x11, 0xA1})
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if r.Valid {
		t.Error("mismatch must not produce a valid reading")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Frame != (logic.Frame{0x02, 0x8C, 0x01, 0x11, 0xA1}) {
		t.Errorf("frame not carried in error: % x", de.Frame[:])
	}
	if logic.KindOf(err) != logic.ChecksumMismatch {
		t.Errorf("kind: got %s", logic.KindOf(err))
	}
}

func TestDecodeChecksumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		var f logic.Frame
		rng.Read(f[:4])
		f[4] = f[0] + f[1] + f[2] + f[3]

		r, err := Decode(f)
		if err != nil {
			t.Fatalf("frame % x: unexpected error %v", f[:], err)
		}
		if want := uint(f[0])<<8 | uint(f[1]); r.HumidityTenths != want {
			t.Fatalf("frame % x: humidity got %d, want %d", f[:], r.HumidityTenths, want)
		}
		// Bit 15 is the sign; the remaining 15 bits are the magnitude.
		want := int(f[2]&0x7f)<<8 | int(f[3])
		if f[2]&0x80 != 0 {
			want = -want
		}
		if r.TemperatureTenths != want {
			t.Fatalf("frame % x: temperature got %d, want %d", f[:], r.TemperatureTenths, want)
		}
		if f[2]&0x80 == 0 && r.TemperatureTenths != int(f[2])<<8|int(f[3]) {
			t.Fatalf("frame % x: positive temperature should equal the raw value", f[:])
		}

		bad := f
		bad[4] += byte(1 + rng.Intn(255))
		r, err = Decode(bad)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("frame % x: expected checksum mismatch, got %v", bad[:], err)
		}
		if r.Valid {
			t.Fatalf("frame % x: mismatch produced a reading", bad[:])
		}
	}
}

func TestDecodeChecksumWraps(t *testing.T) {
	f := logic.Frame{0xFF, 0xFF, 0x01, 0x03}
	f[4] = 0x02 // (255+255+1+3) mod 256
	if _, err := Decode(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeNegativeTemperature(t *testing.T) {
	f := logic.Frame{0x01, 0x90, 0x80, 0xB9}
	f[4] = Checksum(f)

	r, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TemperatureTenths != -185 {
		t.Errorf("temperature: got %d, want -185", r.TemperatureTenths)
	}
	if r.HumidityTenths != 400 {
		t.Errorf("humidity: got %d, want 400", r.HumidityTenths)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, r := range []logic.Reading{
		{TemperatureTenths: 273, HumidityTenths: 652, Valid: true},
		{TemperatureTenths: -185, HumidityTenths: 400, Valid: true},
		{TemperatureTenths: 0, HumidityTenths: 0, Valid: true},
	} {
		got, err := Decode(Encode(r))
		if err != nil {
			t.Fatalf("%+v: %v", r, err)
		}
		if got != r {
			t.Errorf("got %+v, want %+v", got, r)
		}
	}
	if f := Encode(logic.Reading{TemperatureTenths: 273, HumidityTenths: 652}); f != (logic.Frame{0x02, 0x8C, 0x01, 0x11, 0xA0}) {
		t.Errorf("encode: got % x", f[:])
	}
}

func TestDecodeBit(t *testing.T) {
	threshold := 30 * time.Microsecond
	tests := []struct {
		width time.Duration
		want  byte
	}{
		{0, 0},
		{26 * time.Microsecond, 0},
		{28 * time.Microsecond, 0},
		{30 * time.Microsecond, 0},
		{30*time.Microsecond + time.Nanosecond, 1},
		{31 * time.Microsecond, 1},
		{70 * time.Microsecond, 1},
	}
	for _, tt := range tests {
		if got := DecodeBit(tt.width, threshold); got != tt.want {
			t.Errorf("DecodeBit(%v): got %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestDecodeBitConfigurableThreshold(t *testing.T) {
	for _, th := range []time.Duration{10 * time.Microsecond, 30 * time.Microsecond, 50 * time.Microsecond} {
		for w := time.Duration(0); w <= 100*time.Microsecond; w += time.Microsecond {
			want := byte(0)
			if w > th {
				want = 1
			}
			if got := DecodeBit(w, th); got != want {
				t.Fatalf("threshold %v width %v: got %d, want %d", th, w, got, want)
			}
		}
	}
}

func TestReadHealthyWaveform(t *testing.T) {
	d, slept := newTestDecoder(t, Timing{})
	line := gpio.NewFakeLine(gpio.FrameWaveform([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}))

	r, err := d.Read(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != (logic.Reading{TemperatureTenths: 273, HumidityTenths: 652, Valid: true}) {
		t.Errorf("got %+v", r)
	}

	// Request: low for the wake period, then release.
	if len(line.Writes) != 2 || line.Writes[0] != gpio.Low || line.Writes[1] != gpio.High {
		t.Errorf("writes: got %v, want [LOW HIGH]", line.Writes)
	}
	if len(*slept) != 1 || (*slept)[0] != 18*time.Millisecond {
		t.Errorf("wake: got %v, want [18ms]", *slept)
	}
	if line.Output {
		t.Error("line should be left in input mode")
	}
	if line.Releases != 1 {
		t.Errorf("releases: got %d, want 1", line.Releases)
	}
}

func TestReadWaveformChecksumMismatch(t *testing.T) {
	d, _ := newTestDecoder(t, Timing{})
	line := gpio.NewFakeLine(gpio.FrameWaveform([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA1}))

	r, err := d.Read(line)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if r.Valid {
		t.Error("mismatch must not produce a valid reading")
	}
}

func TestReadNoResponse(t *testing.T) {
	tests := []struct {
		name     string
		script   []gpio.Segment
		wantStep int
	}{
		{
			name:     "sensor absent",
			script:   nil,
			wantStep: 0,
		},
		{
			name:     "line stuck low after release",
			script:   []gpio.Segment{{Level: gpio.High, Duration: 30 * time.Microsecond}, {Level: gpio.Low, Duration: 5 * time.Millisecond}},
			wantStep: 1,
		},
		{
			name: "response high never ends",
			script: []gpio.Segment{
				{Level: gpio.High, Duration: 30 * time.Microsecond},
				{Level: gpio.Low, Duration: 80 * time.Microsecond},
			},
			wantStep: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDecoder(t, Timing{})
			line := gpio.NewFakeLine(tt.script)

			r, err := d.Read(line)
			if !errors.Is(err, ErrNoResponse) {
				t.Fatalf("expected ErrNoResponse, got %v", err)
			}
			if r.Valid {
				t.Error("no-response must not produce a reading")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Phase != PhaseHandshake || de.Step != tt.wantStep {
				t.Errorf("got phase %s step %d, want handshake step %d", de.Phase, de.Step, tt.wantStep)
			}
		})
	}
}

func TestReadMalformedBitWidthCap(t *testing.T) {
	d, _ := newTestDecoder(t, Timing{})
	script := gpio.FrameWaveform([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0})
	script[gpio.BitHighIndex(10)].Duration = 2 * time.Millisecond

	r, err := d.Read(gpio.NewFakeLine(script))
	if !errors.Is(err, ErrMalformedBit) {
		t.Fatalf("expected ErrMalformedBit, got %v", err)
	}
	if r.Valid {
		t.Error("malformed bit must not produce a reading")
	}
	var de *DecodeError
	errors.As(err, &de)
	if de.Step != 10 {
		t.Errorf("bit: got %d, want 10", de.Step)
	}
}

func TestReadTruncatedFrame(t *testing.T) {
	d, _ := newTestDecoder(t, Timing{})
	full := gpio.FrameWaveform([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0})
	// Sensor goes quiet (idle high) after the start marker of bit 20.
	script := full[:gpio.BitHighIndex(20)]

	_, err := d.Read(gpio.NewFakeLine(script))
	if !errors.Is(err, ErrMalformedBit) {
		t.Fatalf("expected ErrMalformedBit, got %v", err)
	}
	var de *DecodeError
	errors.As(err, &de)
	if de.Step != 20 {
		t.Errorf("bit: got %d, want 20", de.Step)
	}
}

func TestReadStuckLowMidFrame(t *testing.T) {
	d, _ := newTestDecoder(t, Timing{})
	script := gpio.FrameWaveform([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0})
	script[gpio.BitHighIndex(5)-1].Duration = 3 * time.Millisecond

	_, err := d.Read(gpio.NewFakeLine(script))
	if !errors.Is(err, ErrMalformedBit) {
		t.Fatalf("expected ErrMalformedBit, got %v", err)
	}
}

func TestReadLineFault(t *testing.T) {
	d, _ := newTestDecoder(t, Timing{})
	line := gpio.NewFakeLine(nil)
	line.IOError = errors.New("device busy")

	_, err := d.Read(line)
	if !errors.Is(err, ErrLineFault) {
		t.Fatalf("expected ErrLineFault, got %v", err)
	}
	if !errors.Is(err, line.IOError) {
		t.Error("line error should be wrapped")
	}
	if logic.KindOf(err) != logic.LineFault {
		t.Errorf("kind: got %s", logic.KindOf(err))
	}
}

func TestReadCustomThreshold(t *testing.T) {
	// A sensor with slower pulses: zeros 40µs, ones 90µs.
	frame := [5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}
	script := gpio.FrameWaveform(frame)
	for n := 0; n < FrameBits; n++ {
		i := gpio.BitHighIndex(n)
		if script[i].Duration == gpio.OneHigh {
			script[i].Duration = 90 * time.Microsecond
		} else {
			script[i].Duration = 40 * time.Microsecond
		}
	}

	// Default threshold reads every bit as 1.
	d, _ := newTestDecoder(t, Timing{})
	if _, err := d.Read(gpio.NewFakeLine(script)); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("default threshold: expected checksum mismatch, got %v", err)
	}

	d, _ = newTestDecoder(t, Timing{Threshold: 60 * time.Microsecond})
	r, err := d.Read(gpio.NewFakeLine(script))
	if err != nil {
		t.Fatalf("threshold 60µs: unexpected error: %v", err)
	}
	if r.HumidityTenths != 652 || r.TemperatureTenths != 273 {
		t.Errorf("got %+v", r)
	}
}

func TestTimingDefaults(t *testing.T) {
	d := New(Timing{Threshold: 40 * time.Microsecond})
	got := d.Timing()
	if got.Threshold != 40*time.Microsecond {
		t.Errorf("Threshold: got %v, want 40µs", got.Threshold)
	}
	if got.Wake != 18*time.Millisecond || got.HandshakeTimeout != time.Millisecond ||
		got.BitStartTimeout != time.Millisecond || got.BitMaxWidth != time.Millisecond {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestTimingMaxDuration(t *testing.T) {
	want := 18*time.Millisecond + 3*time.Millisecond + 40*2*time.Millisecond
	if got := DefaultTiming().MaxDuration(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
