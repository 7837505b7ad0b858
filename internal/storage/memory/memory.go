package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	executions map[string]model.ExecutionRecord
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		executions: make(map[string]model.ExecutionRecord),
		logger:     cfg.Logger,
	}, nil
}

// CreateExecution stores a new execution record.
func (r *Repository) CreateExecution(ctx context.Context, e model.ExecutionRecord) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid execution: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[e.ID]; ok {
		return fmt.Errorf("execution %s: %w", e.ID, model.ErrAlreadyExists)
	}

	r.executions[e.ID] = e
	r.logger.Debugf("Created execution in repository: %s", e.ID)

	return nil
}

// GetExecution retrieves an execution record by ID.
func (r *Repository) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, model.ErrNotFound)
	}

	return &e, nil
}

// ListExecutions returns the execution records, newest first.
func (r *Repository) ListExecutions(ctx context.Context, opts model.ExecutionListOpts) ([]model.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]model.ExecutionRecord, 0, len(r.executions))
	for _, e := range r.executions {
		if opts.StepID != "" && e.StepID != opts.StepID {
			continue
		}
		executions = append(executions, e)
	}

	slices.SortFunc(executions, func(a, b model.ExecutionRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if opts.Limit > 0 && len(executions) > opts.Limit {
		executions = executions[:opts.Limit]
	}

	return executions, nil
}
