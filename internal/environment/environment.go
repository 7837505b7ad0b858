// Package environment provides the ambient environment variables visible to step scripts.
package environment

import (
	"context"
	"fmt"
	"os"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/model"
)

// Provider returns the ambient environment. Every call returns a new copy, so callers
// can't alter the environment other callers see.
type Provider interface {
	Ambient(ctx context.Context) (model.EnvSnapshot, error)
}

// OSProvider returns the environment of the bridge process at call time.
type OSProvider struct{}

// NewOSProvider returns a new OS environment provider.
func NewOSProvider() OSProvider { return OSProvider{} }

func (OSProvider) Ambient(ctx context.Context) (model.EnvSnapshot, error) {
	return model.ParseEnviron(os.Environ()), nil
}

// StaticProvider returns a fixed environment.
type StaticProvider struct {
	env model.EnvSnapshot
}

// NewStaticProvider returns a provider of a fixed environment, the environment is copied.
func NewStaticProvider(env model.EnvSnapshot) StaticProvider {
	return StaticProvider{env: env.Copy()}
}

func (s StaticProvider) Ambient(ctx context.Context) (model.EnvSnapshot, error) {
	return s.env.Copy(), nil
}

// BackendProvider returns the environment reported by a backend, for backends whose
// commands don't run with the bridge process environment.
type BackendProvider struct {
	backend executor.EnvironmentReporter
}

// NewBackendProvider returns a provider for a backend environment.
func NewBackendProvider(b executor.EnvironmentReporter) BackendProvider {
	return BackendProvider{backend: b}
}

func (b BackendProvider) Ambient(ctx context.Context) (model.EnvSnapshot, error) {
	env, err := b.backend.Environ(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get backend environment: %w", err)
	}
	return env.Copy(), nil
}

// ForBackend returns the environment provider matching where a backend runs commands.
func ForBackend(b executor.Backend) Provider {
	if r, ok := b.(executor.EnvironmentReporter); ok {
		return NewBackendProvider(r)
	}
	return NewOSProvider()
}

// Snapshot freezes the current environment of a provider, so a whole step sees the
// same ambient environment.
func Snapshot(ctx context.Context, p Provider) (StaticProvider, error) {
	env, err := p.Ambient(ctx)
	if err != nil {
		return StaticProvider{}, err
	}
	return StaticProvider{env: env}, nil
}
