package executor

import (
	"context"
	"errors"

	"github.com/slok/stepbridge/internal/model"
)

// WithTimeout returns a context that is done when the command spec timeout elapses.
// The cause of the timeout is model.ErrTimeoutExceeded.
func WithTimeout(ctx context.Context, spec model.CommandSpec) (context.Context, context.CancelFunc) {
	if spec.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, spec.Timeout, model.ErrTimeoutExceeded)
}

// ContextError returns the execution error for a done context: timeout when a deadline
// elapsed, cancelled otherwise. It returns nil if the context is not done.
func ContextError(ctx context.Context, backend string, partial *model.ExecResult) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return nil
	case errors.Is(cause, model.ErrTimeoutExceeded):
		return model.NewExecError(model.ErrTimeoutExceeded, backend, nil, partial)
	case errors.Is(cause, context.DeadlineExceeded):
		return model.NewExecError(model.ErrTimeoutExceeded, backend, cause, partial)
	case errors.Is(cause, context.Canceled):
		return model.NewExecError(model.ErrCancelled, backend, nil, partial)
	default:
		return model.NewExecError(model.ErrCancelled, backend, cause, partial)
	}
}
