package schema

import (
	"fmt"

	perrors "github.com/dshills/plugreg/internal/errors"
)

// ValidationError describes a value that does not fit its schema. Every
// ValidationError matches errors.ErrTypeMismatch.
type ValidationError struct {
	// Path locates the value, e.g. "mock.count" or "hotkeys[2]".
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == perrors.ErrTypeMismatch
}

// NewTypeError reports a value of the wrong Go type.
func NewTypeError(path string, expected Type, actual any) *ValidationError {
	return &ValidationError{
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %T", expected, actual),
		Value:   actual,
	}
}

// NewEnumError reports a string outside a closed list.
func NewEnumError(path, value string, allowed []string) *ValidationError {
	return &ValidationError{
		Path:    path,
		Message: fmt.Sprintf("%q is not one of %q", value, allowed),
		Value:   value,
	}
}

// NewRangeError reports a number outside [min, max]. Either bound may be
// nil.
func NewRangeError(path string, value any, min, max *float64) *ValidationError {
	bound := func(p *float64, open string) string {
		if p == nil {
			return open
		}
		return fmt.Sprint(*p)
	}
	return &ValidationError{
		Path:    path,
		Message: fmt.Sprintf("%v outside [%s, %s]", value, bound(min, "-inf"), bound(max, "+inf")),
		Value:   value,
	}
}

// NewFormatError reports text that does not parse as the expected type.
func NewFormatError(path string, value any, err error) *ValidationError {
	return &ValidationError{Path: path, Message: err.Error(), Value: value}
}
