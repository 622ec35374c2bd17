// Package gwerr defines the closed error taxonomy shared by every
// remote filesystem backend and the orchestrator that drives them.
package gwerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the closed set of failure categories a backend or the
// bookmark/seal stores can report.
type Kind int

// The closed taxonomy. Do not add values without updating every switch
// that ranges over Kind.
const (
	Unknown Kind = iota
	AuthenticationFailed
	BadAddress
	ConnectionRefused
	ConnectionError
	DirStatFailed
	FileCreateDenied
	IoErr
	NoSuchFile
	PexError
	ProtocolError
	UninitializedSession
	UnsupportedFeature
	InvalidFormat
)

func (k Kind) String() string {
	switch k {
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case BadAddress:
		return "BadAddress"
	case ConnectionRefused:
		return "ConnectionRefused"
	case ConnectionError:
		return "ConnectionError"
	case DirStatFailed:
		return "DirStatFailed"
	case FileCreateDenied:
		return "FileCreateDenied"
	case IoErr:
		return "IoErr"
	case NoSuchFile:
		return "NoSuchFile"
	case PexError:
		return "PexError"
	case ProtocolError:
		return "ProtocolError"
	case UninitializedSession:
		return "UninitializedSession"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	case InvalidFormat:
		return "InvalidFormat"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-tagged error. Err, when present, is the wrapped
// underlying cause (use errors.Cause to retrieve it through any number
// of additional Wrap layers added above this one).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (e *Error) Unwrap() error { return e.Err }

// New builds a bare taxonomy error with a message, no cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with a taxonomy kind, preserving it as the cause. If err
// is nil, Wrap returns nil so call sites can write `return gwerr.Wrap(...)`
// unconditionally after a fallible call.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ge, ok := err.(*Error); ok {
			if ge.Kind == kind {
				return true
			}
			err = ge.Err
			continue
		}
		cause := errors.Unwrap(err)
		if cause == err {
			break
		}
		err = cause
	}
	return false
}

// KindOf extracts the taxonomy Kind from err, or Unknown if none is set.
func KindOf(err error) Kind {
	for err != nil {
		if ge, ok := err.(*Error); ok {
			return ge.Kind
		}
		next := errors.Unwrap(err)
		if next == err {
			break
		}
		err = next
	}
	return Unknown
}
