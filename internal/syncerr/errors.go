// Package syncerr defines the error taxonomy shared by the sync server and
// client: a fixed set of kinds, each with its own propagation rule, plus
// a typed wrapper that supports errors.Is/As.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories, each with its own
// propagation rule.
type Kind int

const (
	// Config covers a missing URI or empty playlist at startup.
	Config Kind = iota
	// Transport covers accept/read/write failures on the control channel.
	Transport
	// Decode covers malformed JSON or a frame missing required fields.
	Decode
	// Timeline covers a pipeline state transition failure.
	Timeline
	// Clock covers a clock-synchronisation timeout.
	Clock
	// Protocol covers a schema violation or unsupported version, including
	// unsolicited bytes from a client after its join descriptor.
	Protocol
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Transport:
		return "transport"
	case Decode:
		return "decode"
	case Timeline:
		return "timeline"
	case Clock:
		return "clock"
	case Protocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error that wraps an underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf builds a Kind-tagged error from a format string.
func Newf(kind Kind, format string, a ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, a...)}
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

// Sentinel errors for conditions that need no payload.
var (
	// ErrUnexpectedBytes is returned when a client sends anything after
	// its join descriptor; no client-to-server traffic is expected
	// post-join.
	ErrUnexpectedBytes = errors.New("unexpected bytes after join descriptor")

	// ErrClockSyncTimeout is returned when the client's clock provider
	// does not report synchronised within the 10s bound.
	ErrClockSyncTimeout = errors.New("clock synchronisation timed out")
)
