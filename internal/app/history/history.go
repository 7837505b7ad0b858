package history

import (
	"context"
	"fmt"

	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/storage"
)

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})

	return nil
}

// Service queries the execution history.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// ID returns a single execution, the rest of the filters are ignored (optional).
	ID string
	// StepID only returns the executions of this step (optional).
	StepID string
	// OnlyFailed only returns the executions that failed or exited with a non zero code.
	OnlyFailed bool
	// Limit is the max number of executions returned, newest first (optional).
	Limit int
}

func (r Request) validate() error {
	if r.Limit < 0 {
		return fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}
	return nil
}

// Run returns the executions that match the request, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.ExecutionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.ID != "" {
		r, err := s.repo.GetExecution(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get execution: %w", err)
		}
		return []model.ExecutionRecord{*r}, nil
	}

	// Failures are filtered here, so the limit can't be applied by the repository.
	opts := model.ExecutionListOpts{StepID: req.StepID, Limit: req.Limit}
	if req.OnlyFailed {
		opts.Limit = 0
	}

	records, err := s.repo.ListExecutions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list executions: %w", err)
	}

	if req.OnlyFailed {
		filtered := make([]model.ExecutionRecord, 0, len(records))
		for _, r := range records {
			if failed(r) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
		if req.Limit > 0 && len(records) > req.Limit {
			records = records[:req.Limit]
		}
	}

	s.logger.Debugf("found %d executions", len(records))
	return records, nil
}

func failed(r model.ExecutionRecord) bool {
	return r.ErrorKind != "" || !r.Completed || r.ExitCode != 0
}
