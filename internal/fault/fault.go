// Package fault defines the error kinds raised by the monitor's hardware and
// file system layers. Callers recover from them only at the tick boundary.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// Defined error kinds.
const (
	HardwareIO Kind = iota + 1
	FileSystem
	ResourceState
)

// ErrClosed is wrapped by ResourceState errors raised on a released handle.
var ErrClosed = errors.New("resource closed")

func (k Kind) String() string {
	switch k {
	case HardwareIO:
		return "hardware I/O"
	case FileSystem:
		return "file system"
	case ResourceState:
		return "resource state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified failure of a single operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil if err is nil, otherwise err classified as kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Closed returns a ResourceState error for op on a released handle.
func Closed(op string) error {
	return &Error{Kind: ResourceState, Op: op, Err: ErrClosed}
}

// Is reports whether any error in err's chain is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
