package errext

import "errors"

// HasHint is implemented by errors that carry a suggestion for the user,
// such as which flag to change.
type HasHint interface {
	error
	Hint() string
}

// WithHint attaches hint to err. When err already has a hint, the new one
// comes first and the older one follows in parentheses. A nil err stays nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return hintedError{err: err, hint: hint}
}

type hintedError struct {
	err  error
	hint string
}

var _ HasHint = hintedError{}

func (e hintedError) Error() string { return e.err.Error() }
func (e hintedError) Unwrap() error { return e.err }

func (e hintedError) Hint() string {
	var inner HasHint
	if !errors.As(e.err, &inner) {
		return e.hint
	}
	return e.hint + " (" + inner.Hint() + ")"
}
