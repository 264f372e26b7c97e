package aio

import (
	"errors"
	"fmt"
)

// DispatchError reports a synchronous failure to start an operation: the
// engine rejected the dispatch, no completion exists and no callback will
// ever fire. Errno is the positive errno value.
type DispatchError struct {
	Op     string
	Object string
	Errno  int
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s %q: dispatch failed (errno %d)", e.Op, e.Object, e.Errno)
}

// OperationError reports a failed operation: the engine completed it with a
// negative result code. Errno is the positive errno value.
type OperationError struct {
	Op     string
	Object string
	Errno  int
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %q: operation failed (errno %d)", e.Op, e.Object, e.Errno)
}

// ErrSinkClosed is returned by WriteSink operations after Close or Abort.
var ErrSinkClosed = errors.New("write sink closed")

// Errno extracts the engine errno from a DispatchError or OperationError
// anywhere in err's chain.
func Errno(err error) (int, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Errno, true
	}
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Errno, true
	}
	return 0, false
}
