// Package logic contains the pure data model for fridge/freezer sampling.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"time"
)

// Channel identifies one of the two sensor lines.
type Channel string

const (
	Refrigerator Channel = "refrigerator"
	Freezer      Channel = "freezer"
)

// Label returns the short display label for the channel.
func (c Channel) Label() string {
	switch c {
	case Refrigerator:
		return "REF"
	case Freezer:
		return "FRZ"
	}
	return "???"
}

// Frame is the raw 5-byte sensor transfer:
// humidity high/low, temperature high/low, checksum.
type Frame [5]byte

// Reading is a checksum-validated sensor measurement in tenths.
type Reading struct {
	TemperatureTenths int  // °C ×10
	HumidityTenths    uint // %RH ×10
	Valid             bool
}

// Temperature returns the temperature in °C.
func (r Reading) Temperature() float64 { return float64(r.TemperatureTenths) / 10 }

// Humidity returns the relative humidity in percent.
func (r Reading) Humidity() float64 { return float64(r.HumidityTenths) / 10 }

// FailureKind classifies why a channel produced no reading.
type FailureKind string

const (
	NoResponse       FailureKind = "NO_RESPONSE"
	MalformedBit     FailureKind = "MALFORMED_BIT"
	ChecksumMismatch FailureKind = "CHECKSUM_MISMATCH"
	LineFault        FailureKind = "LINE_FAULT"
	UnknownFailure   FailureKind = "UNKNOWN"
)

// KindOf extracts the failure kind from a decode error. Errors that carry no
// kind map to UnknownFailure; nil maps to "".
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var k interface{ FailureKind() FailureKind }
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	return UnknownFailure
}

// ChannelResult is the outcome of one decode attempt on one channel.
// Reading is only meaningful when Err is nil.
type ChannelResult struct {
	Channel Channel
	Reading Reading
	Err     error
}

// OK reports whether the result carries a valid reading.
func (r ChannelResult) OK() bool {
	return r.Err == nil && r.Reading.Valid
}

// Batch pairs both channel results from one tick.
type Batch struct {
	Timestamp    time.Time
	Refrigerator ChannelResult
	Freezer      ChannelResult
}

// Results returns the channel results in display order.
func (b Batch) Results() [2]ChannelResult {
	return [2]ChannelResult{b.Refrigerator, b.Freezer}
}

// Counts tracks outcomes for one channel since startup.
type Counts struct {
	OK               int
	NoResponse       int
	MalformedBit     int
	ChecksumMismatch int
	LineFault        int
	Unknown          int
}

// Failures returns the total number of failed attempts.
func (c Counts) Failures() int {
	return c.NoResponse + c.MalformedBit + c.ChecksumMismatch + c.LineFault + c.Unknown
}

// StatsSnapshot is a copy of the running counters.
type StatsSnapshot struct {
	Rounds       int
	Overruns     int
	SinkErrors   int
	Refrigerator Counts
	Freezer      Counts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Stats     StatsSnapshot
}
