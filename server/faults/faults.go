// Package faults classifies the failures the control service can hit and
// says which of them the loops may shrug off.
package faults

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// SensorUnavailable: camera missing or refusing connections. Fatal at startup.
	SensorUnavailable
	// ConfigurationFailure: bad settings, interface setup or socket bind failed. Fatal at startup.
	ConfigurationFailure
	// NoCenterlineDetected: fewer than two sides had a segment. Expected steady state.
	NoCenterlineDetected
	// TransmitFailure: a datagram could not be sent. Dropped for that tick.
	TransmitFailure
	// ReceiveDecodeError: an inbound datagram could not be parsed. Discarded.
	ReceiveDecodeError
)

func (k Kind) String() string {
	switch k {
	case SensorUnavailable:
		return "sensor unavailable"
	case ConfigurationFailure:
		return "configuration failure"
	case NoCenterlineDetected:
		return "no centerline detected"
	case TransmitFailure:
		return "transmit failure"
	case ReceiveDecodeError:
		return "receive decode error"
	default:
		return "unknown fault"
	}
}

// Recoverable reports whether a loop may log the fault and carry on.
func (k Kind) Recoverable() bool {
	switch k {
	case NoCenterlineDetected, TransmitFailure, ReceiveDecodeError:
		return true
	default:
		return false
	}
}

// Error is a fault of a given kind raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, faults.ErrTransmit) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }

// Sentinels for errors.Is.
var (
	ErrSensorUnavailable = &Error{Kind: SensorUnavailable}
	ErrConfiguration     = &Error{Kind: ConfigurationFailure}
	ErrNoCenterline      = &Error{Kind: NoCenterlineDetected}
	ErrTransmit          = &Error{Kind: TransmitFailure}
	ErrReceiveDecode     = &Error{Kind: ReceiveDecodeError}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRecoverable is false for nil and for errors that carry no fault kind.
func IsRecoverable(err error) bool {
	return KindOf(err).Recoverable()
}
