package dht

import (
	"errors"
	"fmt"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// Sentinel errors for errors.Is matching against a *DecodeError.
var (
	ErrNoResponse       = errors.New("dht: no response")
	ErrMalformedBit     = errors.New("dht: malformed bit")
	ErrChecksumMismatch = errors.New("dht: checksum mismatch")
	ErrLineFault        = errors.New("dht: line fault")
)

// Phase names the protocol step a decode failed in.
type Phase string

const (
	PhaseRequest   Phase = "request"
	PhaseHandshake Phase = "handshake"
	PhaseBits      Phase = "bits"
	PhaseValidate  Phase = "validate"
)

// DecodeError describes why a decode attempt produced no reading.
type DecodeError struct {
	Kind  logic.FailureKind
	Phase Phase
	Step  int         // handshake step (0..2) or bit index (0..39); -1 if n/a
	Frame logic.Frame // raw bytes, only set for checksum mismatches
	Err   error       // underlying line error, if any
}

func (e *DecodeError) Error() string {
	var s string
	switch e.Kind {
	case logic.ChecksumMismatch:
		s = fmt.Sprintf("checksum mismatch: frame % x", e.Frame[:])
	case logic.MalformedBit:
		s = fmt.Sprintf("malformed bit %d", e.Step)
	case logic.NoResponse:
		s = fmt.Sprintf("no response in %s step %d", e.Phase, e.Step)
	default:
		s = fmt.Sprintf("line fault during %s", e.Phase)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FailureKind reports the failure classification.
func (e *DecodeError) FailureKind() logic.FailureKind { return e.Kind }

// Is matches the package sentinel for the error's kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrNoResponse:
		return e.Kind == logic.NoResponse
	case ErrMalformedBit:
		return e.Kind == logic.MalformedBit
	case ErrChecksumMismatch:
		return e.Kind == logic.ChecksumMismatch
	case ErrLineFault:
		return e.Kind == logic.LineFault
	}
	return false
}
