package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/model"
)

func TestContextError(t *testing.T) {
	tests := map[string]struct {
		ctx     func() context.Context
		expKind error
	}{
		"A running context should not be an error": {
			ctx: context.Background,
		},

		"A spec timeout should be a timeout": {
			ctx: func() context.Context {
				ctx, cancel := executor.WithTimeout(context.Background(), model.CommandSpec{Timeout: time.Nanosecond})
				defer cancel()
				<-ctx.Done()
				return ctx
			},
			expKind: model.ErrTimeoutExceeded,
		},

		"A parent deadline should be a timeout": {
			ctx: func() context.Context {
				ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
				defer cancel()
				return ctx
			},
			expKind: model.ErrTimeoutExceeded,
		},

		"A cancelled context should be cancelled": {
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			expKind: model.ErrCancelled,
		},

		"A cancelled context with a cause should be cancelled": {
			ctx: func() context.Context {
				ctx, cancel := context.WithCancelCause(context.Background())
				cancel(errors.New("step aborted"))
				return ctx
			},
			expKind: model.ErrCancelled,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			partial := &model.ExecResult{Stdout: []byte("x")}
			err := executor.ContextError(test.ctx(), "test", partial)
			if test.expKind == nil {
				assert.NoError(err)
				return
			}
			assert.ErrorIs(err, test.expKind)
			assert.Equal(partial, model.PartialResult(err))
		})
	}
}
