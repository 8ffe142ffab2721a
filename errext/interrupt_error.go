package errext

import (
	"errors"

	"github.com/liuxd6825/cdptab/errext/exitcodes"
)

// InterruptError is returned when a command is stopped from the outside,
// e.g. by SIGINT or SIGTERM.
type InterruptError struct {
	Reason string
}

var _ HasExitCode = &InterruptError{}

// Error returns the reason of the interruption.
func (i *InterruptError) Error() string {
	return i.Reason
}

// ExitCode returns the status code used when the cdptab process exits.
func (i *InterruptError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ExternalAbort
}

// AbortSignal is the reason used when a signal cancels a running command.
const AbortSignal = "interrupted by signal"

// IsInterruptError returns true if err is *InterruptError.
func IsInterruptError(err error) bool {
	if err == nil {
		return false
	}
	var intErr *InterruptError
	return errors.As(err, &intErr)
}
