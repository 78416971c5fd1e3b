package backend

import (
	"errors"
	"fmt"
)

var ErrBackendFailure = errors.New("backend failure")

// Error reports a failed runtime call. Log holds the compiler diagnostics for
// program build failures.
type Error struct {
	Op  string
	Err error
	Log string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
	if e.Log != "" {
		msg += "\n" + e.Log
	}
	return msg
}

func (e *Error) Unwrap() []error {
	return []error{ErrBackendFailure, e.Err}
}

// Failure wraps err as a backend failure of op. Errors that already are
// backend failures are returned unchanged.
func Failure(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Op: op, Err: err}
}
