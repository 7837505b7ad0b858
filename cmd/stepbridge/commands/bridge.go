package commands

import (
	"context"
	"fmt"

	"github.com/slok/stepbridge/internal/bridge"
	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/executor/factory"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/storage"
	"github.com/slok/stepbridge/internal/storage/sqlite"
)

type bridgeSetup struct {
	binding model.BackendBinding
	backend executor.Backend
	svc     *bridge.Service
	close   func()
}

// newBridge creates the bridge of the configured backend. When record is set the
// executions are stored on the history database, with the default step if the
// binding doesn't set one.
func (c *RootCommand) newBridge(ctx context.Context, record bool, defaultStep string) (*bridgeSetup, error) {
	logger := c.Logger

	binding, err := c.Binding(ctx)
	if err != nil {
		return nil, err
	}
	if binding.StepID == "" {
		binding.StepID = defaultStep
	}

	backend, closeBackend, err := factory.NewBackend(ctx, binding, logger)
	if err != nil {
		return nil, err
	}
	closers := []func(){closeBackend}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var repo storage.Repository
	if record && !c.NoHistory {
		r, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: c.DBPath,
			Logger: logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("could not create history repository: %w", err)
		}
		closers = append(closers, func() { _ = r.Close() })
		repo = r
	}

	svc, err := bridge.NewService(bridge.ServiceConfig{
		Backend:        backend,
		Repository:     repo,
		StepID:         binding.StepID,
		DefaultTimeout: binding.DefaultTimeout,
		Logger:         logger,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("could not create bridge: %w", err)
	}

	return &bridgeSetup{
		binding: binding,
		backend: backend,
		svc:     svc,
		close:   closeAll,
	}, nil
}
