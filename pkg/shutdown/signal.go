// Package shutdown provides the process-wide cooperative cancellation signal.
//
// Any component may trigger it; every worker selects on Done() in its loop, so
// the signal is observed within one polling interval.
package shutdown

import (
	"context"
	"errors"
)

// ErrRequested is the cause recorded when Trigger is called with a nil reason.
var ErrRequested = errors.New("shutdown requested")

// Signal is a multi-writer, multi-reader shutdown flag.
// The first Trigger wins; later causes are ignored.
type Signal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New returns a Signal that also fires when parent is cancelled.
func New(parent context.Context) *Signal {
	ctx, cancel := context.WithCancelCause(parent)
	return &Signal{ctx: ctx, cancel: cancel}
}

// Trigger sets the signal. Safe to call from any goroutine, any number of times.
func (s *Signal) Trigger(reason error) {
	if reason == nil {
		reason = ErrRequested
	}
	s.cancel(reason)
}

// IsSet reports whether the signal has fired.
func (s *Signal) IsSet() bool {
	return s.ctx.Err() != nil
}

// Done returns a channel closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Cause returns the first trigger reason, or nil while the signal is unset.
func (s *Signal) Cause() error {
	if !s.IsSet() {
		return nil
	}
	return context.Cause(s.ctx)
}

// Context returns a context cancelled together with the signal.
func (s *Signal) Context() context.Context {
	return s.ctx
}
