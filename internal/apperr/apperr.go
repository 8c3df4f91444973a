// Package apperr defines the error kinds the renderer surfaces across
// package boundaries: EDL validation failures, I/O and codec setup
// failures, and the two frame-loop outcomes (DecodeEnd, EncodeFatal) that
// the orchestrator treats specially rather than as plain errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure, independent of the message.
type Kind int

const (
	// InvalidEdl marks a validation failure while parsing or normalizing
	// an EDL document. Path carries the offending object/key.
	InvalidEdl Kind = iota
	// IoOpenFailure marks a failure to open a media file or the output file.
	IoOpenFailure
	// CodecUnavailable marks a requested codec or hardware decoder/encoder
	// that could not be resolved.
	CodecUnavailable
	// HardwareInitFailure marks a failed hardware device context creation.
	// Recoverable by falling back to software when AllowFallback is set.
	HardwareInitFailure
	// DecodeEnd is not a failure: it signals the current source has no
	// more frames and the run should finalize successfully.
	DecodeEnd
	// EncodeFatal marks an unrecoverable codec-library error during write.
	EncodeFatal
)

func (k Kind) String() string {
	switch k {
	case InvalidEdl:
		return "InvalidEdl"
	case IoOpenFailure:
		return "IoOpenFailure"
	case CodecUnavailable:
		return "CodecUnavailable"
	case HardwareInitFailure:
		return "HardwareInitFailure"
	case DecodeEnd:
		return "DecodeEnd"
	case EncodeFatal:
		return "EncodeFatal"
	default:
		return "Unknown"
	}
}

// Error is the typed error carried across the renderer. Path is a
// human-readable object/key locator (e.g. "clips[2].track.subtype"); it is
// empty when the kind doesn't have a natural location.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error.
func New(kind Kind, path, msg string) *Error {
	return &Error{Kind: kind, Path: path, Msg: msg}
}

// Wrap builds a typed error around an underlying cause.
func Wrap(kind Kind, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Msg: err.Error(), Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err's kind matches k.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
