// Package errext attaches exit codes and user hints to errors, so the command
// line can report a failure without knowing where it came from.
package errext

import (
	"errors"

	"github.com/liuxd6825/cdptab/errext/exitcodes"
)

// HasExitCode is implemented by errors that decide the process exit code.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// WithExitCodeIfNone wraps err with code unless something in its chain
// already carries one. A nil err stays nil.
func WithExitCodeIfNone(err error, code exitcodes.ExitCode) error {
	if err == nil || hasExitCode(err) {
		return err
	}
	return codedError{err: err, code: code}
}

func hasExitCode(err error) bool {
	var ecerr HasExitCode
	return errors.As(err, &ecerr)
}

type codedError struct {
	err  error
	code exitcodes.ExitCode
}

var _ HasExitCode = codedError{}

func (e codedError) Error() string                { return e.err.Error() }
func (e codedError) Unwrap() error                { return e.err }
func (e codedError) ExitCode() exitcodes.ExitCode { return e.code }
