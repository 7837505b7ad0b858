package storage

import (
	"context"

	"github.com/slok/stepbridge/internal/model"
)

// Repository is the interface for execution history persistence.
type Repository interface {
	CreateExecution(ctx context.Context, r model.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, opts model.ExecutionListOpts) ([]model.ExecutionRecord, error)
}

// BindingRepository is the interface for loading backend bindings.
type BindingRepository interface {
	GetBinding(ctx context.Context, path string) (model.BackendBinding, error)
}
