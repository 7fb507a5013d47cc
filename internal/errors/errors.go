// Package errors defines the error taxonomy shared by the registry, the
// metadata loader and every storage backend.
//
// Every failure surfaced by plugreg matches exactly one of the sentinel
// errors below through errors.Is, so callers can branch on the kind of
// failure without inspecting messages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per failure kind.
var (
	// ErrNotFound indicates no descriptor or stored entry exists for an identifier.
	ErrNotFound = errors.New("not found")

	// ErrMalformed indicates a descriptor failed to parse or validate.
	ErrMalformed = errors.New("malformed descriptor")

	// ErrTypeMismatch indicates a value failed schema validation.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrReadOnly indicates a write was attempted on a read-only setting.
	ErrReadOnly = errors.New("setting is read-only")

	// ErrBackendUnavailable indicates a backend could not be constructed or opened.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrIOFailure indicates a transient storage error.
	ErrIOFailure = errors.New("i/o failure")

	// ErrNotSet indicates a backend holds no value for a key.
	ErrNotSet = errors.New("value not set")

	// ErrUnsupported indicates a backend lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported")

	// ErrClosed indicates use of a closed context or backend.
	ErrClosed = errors.New("closed")
)

// ErrorClass represents how a caller is expected to react to an error.
type ErrorClass int

const (
	// ErrorTransient represents failures that may succeed when retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents failures caused by the caller's input or data.
	ErrorInvalid
	// ErrorFatal represents failures that end the session by convention.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (c ErrorClass) String() string {
	switch c {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a failure carrying its kind and the identifiers it concerns.
type Error struct {
	// Kind is one of the sentinel errors of this package.
	Kind error
	// Op names the failed operation (e.g. "setting.set", "ini.write").
	Op string
	// Plugin is the plugin name, if any.
	Plugin string
	// Setting is the setting name, if any.
	Setting string
	// Err is the underlying cause (may be nil).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Plugin != "" {
		b.WriteString(e.Plugin)
		if e.Setting != "" {
			b.WriteByte('/')
			b.WriteString(e.Setting)
		}
		b.WriteString(": ")
	}
	kind := "error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	b.WriteString(kind)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// E builds an *Error of the given kind.
func E(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// ForSetting builds an *Error of the given kind scoped to one setting.
func ForSetting(kind error, op, plugin, setting string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Plugin: plugin, Setting: setting, Err: cause}
}

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// KindOf returns the sentinel matched by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrNotFound, ErrMalformed, ErrTypeMismatch, ErrReadOnly,
		ErrBackendUnavailable, ErrIOFailure, ErrNotSet, ErrUnsupported, ErrClosed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsTransient checks whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrIOFailure) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Classify returns the error class for err.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsTransient(err):
		return ErrorTransient
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrClosed):
		return ErrorFatal
	default:
		return ErrorInvalid
	}
}
