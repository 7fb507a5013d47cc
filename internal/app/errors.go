// Package app implements the plugreg command line tool.
package app

import (
	"errors"
	"fmt"
)

// ErrUsage marks errors caused by a malformed command line.
var ErrUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
