package exception

import (
	"errors"
	"fmt"
)

// Is reports whether err wraps target. Callers that already import the
// wrapping library use this to match sentinels without a second errors
// import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap annotates a sentinel with detail while keeping it matchable with Is.
func Wrap(sentinel error, detail string) error {
	return fmt.Errorf("%s: %w", detail, sentinel)
}

// Wrapf annotates a sentinel with formatted detail while keeping it
// matchable with Is.
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
