package executor

import (
	"context"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/stepbridge/internal/model"
)

// Backend is the interface for command execution targets.
type Backend interface {
	// Name returns the backend name, used on logs and errors.
	Name() string

	// Execute runs a command and waits until it ends.
	// A command exiting with a non-zero code is a result, not an error. Failures are
	// model.ExecError of one of the known kinds, with the partial output when available.
	// On context cancellation or spec timeout the running process is terminated
	// before returning.
	Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error)

	// Platform returns the raw OS and architecture of the execution target.
	Platform(ctx context.Context) (ocispec.Platform, error)
}

// ConcurrencyReporter is implemented by backends that know if they can execute
// multiple commands at the same time. Backends not implementing it are assumed
// concurrent.
type ConcurrencyReporter interface {
	SupportsConcurrentExecute() bool
}

// EnvironmentReporter is implemented by backends that have an environment different
// from the bridge process one.
type EnvironmentReporter interface {
	Environ(ctx context.Context) (model.EnvSnapshot, error)
}

// Checker is implemented by backends that can run preflight checks.
type Checker interface {
	Check(ctx context.Context) []model.CheckResult
}

// SupportsConcurrency returns true if the backend can run commands concurrently.
func SupportsConcurrency(b Backend) bool {
	r, ok := b.(ConcurrencyReporter)
	if !ok {
		return true
	}
	return r.SupportsConcurrentExecute()
}
