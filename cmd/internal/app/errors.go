package app

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid application configuration.
	ErrConfig = errors.New("invalid config")

	// ErrUsage is returned for bad command lines.
	ErrUsage = errors.New("usage")
)

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
