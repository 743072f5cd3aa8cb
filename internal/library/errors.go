package library

import (
	"errors"
	"fmt"
)

// Error kinds returned by Store operations. Test with errors.Is.
var (
	// ErrNotFound is returned for unknown folder or file identifiers and unresolvable paths.
	ErrNotFound = errors.New("not found")

	// ErrNameConflict is returned when a sibling already uses the requested name.
	ErrNameConflict = errors.New("name conflict")

	// ErrIO is returned when the underlying filesystem call fails.
	ErrIO = errors.New("i/o error")

	// ErrInvalidName is returned for names that cannot be a single path element.
	ErrInvalidName = errors.New("invalid name")
)

// OpError records a failed Store operation. It unwraps to both its Kind and the
// underlying cause, so callers can match either.
type OpError struct {
	Op     string // e.g. "create folder"
	Target string // id, name or path the operation was applied to
	Kind   error  // one of the Err* sentinels
	Err    error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, target string, kind, err error) error {
	return &OpError{Op: op, Target: target, Kind: kind, Err: err}
}
