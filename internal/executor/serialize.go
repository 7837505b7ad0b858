package executor

import (
	"context"

	"github.com/slok/stepbridge/internal/model"
)

// Slot is a single execution slot that can be waited with a context.
type Slot struct {
	ch chan struct{}
}

// NewSlot returns a free slot.
func NewSlot() *Slot {
	return &Slot{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the slot is free or the context is done.
func (s *Slot) Acquire(ctx context.Context) error {
	// Don't take the slot if the context is already done.
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot.
func (s *Slot) Release() { <-s.ch }

// Serialize returns a backend that runs a single execution at a time if the backend
// can't run concurrent executions, otherwise it returns the same backend.
// Queued executions that have their context cancelled (or their timeout elapsed)
// fail without reaching the backend.
func Serialize(b Backend) Backend {
	if SupportsConcurrency(b) {
		return b
	}
	return &serialized{Backend: b, slot: NewSlot()}
}

type serialized struct {
	Backend
	slot *Slot
}

func (s *serialized) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	ctx, cancel := WithTimeout(ctx, spec)
	defer cancel()

	if err := s.slot.Acquire(ctx); err != nil {
		return nil, ContextError(ctx, s.Backend.Name(), nil)
	}
	defer s.slot.Release()

	return s.Backend.Execute(ctx, spec)
}

func (s *serialized) SupportsConcurrentExecute() bool { return true }

// Unwrap returns the serialized backend.
func (s *serialized) Unwrap() Backend { return s.Backend }
