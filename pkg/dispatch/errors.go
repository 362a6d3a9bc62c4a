package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrTimedOut marks an invocation that exceeded its timeout budget.
	ErrTimedOut = errors.New("timed out")

	// ErrClosed is returned by Invoke after Close.
	ErrClosed = errors.New("dispatch engine closed")
)

// HandlerFailure wraps an error returned or a panic raised by a capability
// handler.
type HandlerFailure struct {
	Capability string
	Cause      error
	Panicked   bool
}

func (e *HandlerFailure) Error() string {
	if e.Panicked {
		return fmt.Sprintf("capability %q panicked: %v", e.Capability, e.Cause)
	}
	return fmt.Sprintf("capability %q failed: %v", e.Capability, e.Cause)
}

func (e *HandlerFailure) Unwrap() error { return e.Cause }

// timeoutError formats a budget overrun.
func timeoutError(capability string, budget fmt.Stringer) error {
	return fmt.Errorf("capability %q %w after %s", capability, ErrTimedOut, budget)
}
