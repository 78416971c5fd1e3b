package kernelargs

import (
	"errors"
	"fmt"
)

var ErrBindFailure = errors.New("kernel argument bind failed")

// BindError reports the argument index the backend rejected.
type BindError struct {
	Index int
	Name  string
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind argument %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBindFailure, e.Err}
}
