package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

// HandlerFunc handles a fake execution.
type HandlerFunc func(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error)

// BackendConfig is the configuration for the fake backend.
type BackendConfig struct {
	// Name is the backend name, defaults to `fake`.
	Name string
	// Handler handles the executions, defaults to a successful execution without output.
	Handler HandlerFunc
	// OS and Arch are the reported platform, default to linux/amd64.
	OS   string
	Arch string
	// PlatformErr makes the platform reporting fail.
	PlatformErr error
	// Env is the reported backend environment, when nil the backend doesn't report environment.
	Env model.EnvSnapshot
	// SingleStream makes the backend report it can't run concurrent executions.
	SingleStream bool
	Logger       log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Name == "" {
		c.Name = "fake"
	}
	if c.Handler == nil {
		c.Handler = Exit(0, "", "")
	}
	if c.OS == "" {
		c.OS = "linux"
	}
	if c.Arch == "" {
		c.Arch = "amd64"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Fake"})
	return nil
}

// Backend is a fake implementation of the executor.Backend interface.
// It records every execution and the max number of executions running at the same time.
type Backend struct {
	cfg BackendConfig

	mu         sync.Mutex
	calls      []model.CommandSpec
	running    int
	maxRunning int
}

// NewBackend creates a new fake backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{cfg: cfg}, nil
}

func (b *Backend) Name() string { return b.cfg.Name }

// Execute records the execution and runs the configured handler.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	b.mu.Lock()
	b.calls = append(b.calls, copySpec(spec))
	b.running++
	b.maxRunning = max(b.maxRunning, b.running)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running--
		b.mu.Unlock()
	}()

	b.cfg.Logger.Debugf("Executing %s", spec.Command())
	return b.cfg.Handler(ctx, spec)
}

func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	if b.cfg.PlatformErr != nil {
		return ocispec.Platform{}, b.cfg.PlatformErr
	}
	return ocispec.Platform{OS: b.cfg.OS, Architecture: b.cfg.Arch}, nil
}

func (b *Backend) SupportsConcurrentExecute() bool { return !b.cfg.SingleStream }

// Environ returns the configured environment.
func (b *Backend) Environ(ctx context.Context) (model.EnvSnapshot, error) {
	if b.cfg.Env == nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, b.cfg.Name, fmt.Errorf("environment not reported"), nil)
	}
	return b.cfg.Env.Copy(), nil
}

func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{{ID: "fake", Message: "Fake backend ready", Status: model.CheckStatusOK}}
}

// Calls returns the received executions.
func (b *Backend) Calls() []model.CommandSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.CommandSpec{}, b.calls...)
}

// MaxConcurrency returns the max number of executions that were running at the same time.
func (b *Backend) MaxConcurrency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxRunning
}

func copySpec(spec model.CommandSpec) model.CommandSpec {
	spec.Args = append([]string(nil), spec.Args...)
	if spec.Env != nil {
		spec.Env = spec.Env.Copy()
	}
	return spec
}

// Exit returns a handler that ends with the exit code and output.
func Exit(code int, stdout, stderr string) HandlerFunc {
	return func(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
		c := executor.NewCapture(spec)
		_, _ = c.Stdout().Write([]byte(stdout))
		_, _ = c.Stderr().Write([]byte(stderr))
		return c.Result(code, true), nil
	}
}

// Sleep returns a handler that writes the output and waits the duration or until
// the execution context is done.
func Sleep(d time.Duration, stdout string) HandlerFunc {
	return func(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
		c := executor.NewCapture(spec)
		_, _ = c.Stdout().Write([]byte(stdout))

		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return c.Result(0, true), nil
		case <-ctx.Done():
			return nil, executor.ContextError(ctx, "fake", c.Partial())
		}
	}
}

// EchoEnv returns a handler that writes the value of an environment variable.
func EchoEnv(name string) HandlerFunc {
	return func(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
		return Exit(0, spec.Env[name]+"\n", "")(ctx, spec)
	}
}

// Fail returns a handler that fails with an execution error of a kind.
func Fail(kind error, cause error) HandlerFunc {
	return func(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
		return nil, model.NewExecError(kind, "fake", cause, nil)
	}
}
