// Package fault defines the typed error taxonomy shared by every engine stage.
//
// Every failure a caller can observe is an *Error carrying a Class (which
// stage family failed) and a Code (why it failed). Sentinel values match with
// errors.Is on class and code, so callers never need to inspect messages:
//
//	if errors.Is(err, fault.ErrOutOfBounds) { ... }
//	if errors.Is(err, fault.ErrDecode) { ... } // any decode failure
//
// # Invariant Violations
//
// Bad input never panics. The only unrecoverable path is Invariant, used when
// an internal consistency check fails (for example a pixel buffer whose length
// disagrees with its stride). Those panics carry an InvariantViolation value
// and are deliberately not recovered by the scheduler.
package fault

import (
	"errors"
	"fmt"
)

// Class identifies the stage family an error belongs to.
type Class uint8

const (
	ClassDecode Class = iota + 1
	ClassTransform
	ClassEncode
	ClassResource
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassDecode:
		return "decode error"
	case ClassTransform:
		return "transform error"
	case ClassEncode:
		return "encode error"
	case ClassResource:
		return "resource error"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Code identifies the reason for a failure within its class.
// The zero value means "no specific code" and is used by class sentinels.
type Code uint8

const (
	CodeNone Code = iota
	UnsupportedFormat
	CorruptData
	Truncated
	InvalidParameters
	OutOfBounds
	EncodingFailure
	OutOfMemory
	PoolExhausted
)

func (c Code) String() string {
	switch c {
	case UnsupportedFormat:
		return "unsupported format"
	case CorruptData:
		return "corrupt data"
	case Truncated:
		return "truncated"
	case InvalidParameters:
		return "invalid parameters"
	case OutOfBounds:
		return "out of bounds"
	case EncodingFailure:
		return "encoding failure"
	case OutOfMemory:
		return "out of memory"
	case PoolExhausted:
		return "pool exhausted"
	default:
		return ""
	}
}

// Error is the single error type returned across the engine boundary.
type Error struct {
	Class Class
	Code  Code
	// Op names the operation or codec that failed (e.g. "png", "crop").
	Op  string
	Err error
}

func (e *Error) Error() string {
	msg := e.Class.String()
	if e.Code != CodeNone {
		msg += " (" + e.Code.String() + ")"
	}
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel with the same class and, when the
// sentinel carries one, the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Class != e.Class {
		return false
	}
	return t.Code == CodeNone || t.Code == e.Code
}

// Class sentinels match any error of the class.
var (
	ErrDecode    = &Error{Class: ClassDecode}
	ErrTransform = &Error{Class: ClassTransform}
	ErrEncode    = &Error{Class: ClassEncode}
	ErrResource  = &Error{Class: ClassResource}
	ErrCancelled = &Error{Class: ClassCancelled}
)

// Code sentinels.
var (
	ErrDecodeUnsupported = &Error{Class: ClassDecode, Code: UnsupportedFormat}
	ErrCorruptData       = &Error{Class: ClassDecode, Code: CorruptData}
	ErrTruncated         = &Error{Class: ClassDecode, Code: Truncated}
	ErrInvalidParameters = &Error{Class: ClassTransform, Code: InvalidParameters}
	ErrOutOfBounds       = &Error{Class: ClassTransform, Code: OutOfBounds}
	ErrEncodeUnsupported = &Error{Class: ClassEncode, Code: UnsupportedFormat}
	ErrEncodingFailure   = &Error{Class: ClassEncode, Code: EncodingFailure}
	ErrOutOfMemory       = &Error{Class: ClassResource, Code: OutOfMemory}
	ErrPoolExhausted     = &Error{Class: ClassResource, Code: PoolExhausted}
)

// ErrWouldBlock is wrapped by the PoolExhausted error a non-blocking submit
// returns when the job queue is full.
var ErrWouldBlock = errors.New("operation would block")

// ErrClosed is returned for submissions to an engine that has shut down.
var ErrClosed = errors.New("engine is shut down")

func newf(class Class, code Code, op, format string, args ...any) *Error {
	return &Error{Class: class, Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// Decodef builds a decode error. The format string follows fmt.Errorf, so %w
// may be used to keep the cause.
func Decodef(code Code, op, format string, args ...any) *Error {
	return newf(ClassDecode, code, op, format, args...)
}

func Transformf(code Code, op, format string, args ...any) *Error {
	return newf(ClassTransform, code, op, format, args...)
}

func Encodef(code Code, op, format string, args ...any) *Error {
	return newf(ClassEncode, code, op, format, args...)
}

func Resourcef(code Code, op, format string, args ...any) *Error {
	return newf(ClassResource, code, op, format, args...)
}

// Cancelled wraps the reason a job stopped (usually a context error).
func Cancelled(op string, cause error) *Error {
	return &Error{Class: ClassCancelled, Op: op, Err: cause}
}

// Wrap attaches op context to err. Engine errors keep their class and code;
// anything else is reported under the fallback class and code.
func Wrap(err error, op string, class Class, code Code) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return &Error{Class: fe.Class, Code: fe.Code, Op: op, Err: err}
	}
	return &Error{Class: class, Code: code, Op: op, Err: err}
}

// ClassOf returns the class of an engine error, or 0 if err is not one.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return 0
}

// CodeOf returns the code of an engine error, or CodeNone.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeNone
}

// InvariantViolation is the panic value raised by Invariant.
type InvariantViolation struct {
	Msg string
}

func (v InvariantViolation) Error() string { return "invariant violation: " + v.Msg }

// Invariant aborts: it is reserved for broken internal invariants, never for
// bad caller input.
func Invariant(format string, args ...any) {
	panic(InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}

// IsInvariant reports whether a recovered panic value came from Invariant.
func IsInvariant(v any) bool {
	_, ok := v.(InvariantViolation)
	return ok
}
