package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every resolution failure.
	ErrNotFound = errors.New("module not found")
	// ErrBrokenSymlink is the cause recorded when a file was found but its
	// real path could not be computed.
	ErrBrokenSymlink = errors.New("cannot compute real path")
)

// Error is returned by Resolve when a specifier cannot be resolved. It always
// matches ErrNotFound; Cause carries a more specific reason when there is one.
type Error struct {
	Specifier string
	From      string
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cannot find module %q from %q", e.Specifier, e.From)
	if e.Cause != nil && e.Cause != ErrNotFound {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound
}
