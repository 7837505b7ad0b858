// Package bridge is the capability surface step scripts use to run commands on the
// backend bound to their step.
package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/stepbridge/internal/environment"
	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/platform"
	"github.com/slok/stepbridge/internal/storage"
)

// ServiceConfig is the configuration for the bridge service.
type ServiceConfig struct {
	// Backend is the execution target bound to the step.
	Backend executor.Backend
	// Environment is the ambient environment, defaults to the environment where the
	// backend runs its commands.
	Environment environment.Provider
	// Repository stores the execution history (optional).
	Repository storage.Repository
	// StepID identifies the step on the execution history (optional).
	StepID string
	// DefaultTimeout applies to runs that don't set a timeout (optional).
	DefaultTimeout time.Duration
	// NewID returns execution record IDs, defaults to ULIDs.
	NewID func() string
	// Now returns the current time, defaults to time.Now.
	Now    func() time.Time
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default timeout can't be negative")
	}
	if c.Environment == nil {
		c.Environment = environment.ForBackend(c.Backend)
	}
	if c.NewID == nil {
		c.NewID = func() string { return ulid.Make().String() }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "bridge.Service", "backend": c.Backend.Name()})
	if c.StepID != "" {
		c.Logger = c.Logger.WithValues(log.Kv{"step": c.StepID})
	}
	return nil
}

// Service runs the commands of a step on its backend. It's safe for concurrent use,
// commands for single stream backends are queued.
type Service struct {
	backend        executor.Backend
	backendName    string
	env            environment.Provider
	repo           storage.Repository
	stepID         string
	defaultTimeout time.Duration
	newID          func() string
	now            func() time.Time
	logger         log.Logger

	platformMu       sync.Mutex
	platformResolved bool
	platform         model.Platform
}

// NewService creates a new bridge service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		backend:        executor.Serialize(cfg.Backend),
		backendName:    cfg.Backend.Name(),
		env:            cfg.Environment,
		repo:           cfg.Repository,
		stepID:         cfg.StepID,
		defaultTimeout: cfg.DefaultTimeout,
		newID:          cfg.NewID,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}, nil
}

// Platform returns the platform of the backend. It never fails: when the backend can't
// report it the platform is unknown. Only reported platforms are cached, so a failed
// lookup is retried on the next call.
func (s *Service) Platform(ctx context.Context) model.Platform {
	s.platformMu.Lock()
	defer s.platformMu.Unlock()

	if s.platformResolved {
		return s.platform
	}

	p, err := s.backend.Platform(ctx)
	if err != nil {
		s.logger.Warningf("Could not get backend platform, using unknown: %s", err)
		return model.PlatformUnknown
	}

	s.platform = platform.Resolve(p.OS)
	s.platformResolved = true
	s.logger.Debugf("Backend platform: %s (%s/%s)", s.platform, p.OS, p.Architecture)

	return s.platform
}

// Environment returns a copy of the ambient environment.
func (s *Service) Environment(ctx context.Context) (model.EnvSnapshot, error) {
	env, err := s.env.Ambient(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get ambient environment: %w", err)
	}
	return env, nil
}

// RunRequest contains the parameters for running a command.
type RunRequest struct {
	// Args is the command argv, mutually exclusive with Shell.
	Args []string
	// Shell is a shell command line, mutually exclusive with Args.
	Shell string
	// WorkingDir is the directory to run the command in, empty uses the backend default.
	WorkingDir string
	// Env replaces the ambient environment when set.
	Env model.EnvOverride
	// Timeout is the run deadline, zero uses the service default.
	Timeout time.Duration
	Stdin   io.Reader
	// Stdout and Stderr stream the output instead of capturing it (optional).
	Stdout io.Writer
	Stderr io.Writer
}

// Run runs a command on the backend and waits until it ends. A command exiting with a
// non-zero code returns a result, errors are reserved for commands that couldn't run
// or finish (model.ExecError), with the partial output when available.
func (s *Service) Run(ctx context.Context, req RunRequest) (*model.ExecResult, error) {
	spec, err := s.commandSpec(ctx, req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	res, err := s.backend.Execute(ctx, spec)
	finish := s.now()

	s.record(ctx, spec, start, finish, res, err)

	if err != nil {
		s.logger.Debugf("Command %s failed (%s): %s", spec.Command(), model.ErrorKind(err), err)
		return nil, err
	}

	s.logger.Debugf("Command %s exited with code %d", spec.Command(), res.ExitCode)
	return res, nil
}

func (s *Service) commandSpec(ctx context.Context, req RunRequest) (model.CommandSpec, error) {
	spec := model.CommandSpec{
		Args:       append([]string(nil), req.Args...),
		Shell:      req.Shell,
		WorkingDir: req.WorkingDir,
		Timeout:    req.Timeout,
		Stdin:      req.Stdin,
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
	}
	if spec.Timeout == 0 {
		spec.Timeout = s.defaultTimeout
	}

	// Check the command before asking a remote backend for its environment.
	if err := spec.Validate(); err != nil {
		return model.CommandSpec{}, fmt.Errorf("invalid command: %w", err)
	}

	if req.Env.Set {
		spec.Env = req.Env.Vars.Copy()
	} else {
		env, err := s.Environment(ctx)
		if err != nil {
			return model.CommandSpec{}, err
		}
		spec.Env = env
	}

	if err := spec.Validate(); err != nil {
		return model.CommandSpec{}, fmt.Errorf("invalid command: %w", err)
	}

	return spec, nil
}

func (s *Service) record(ctx context.Context, spec model.CommandSpec, start, finish time.Time, res *model.ExecResult, execErr error) {
	if s.repo == nil {
		return
	}

	rec := model.ExecutionRecord{
		ID:         s.newID(),
		StepID:     s.stepID,
		Backend:    s.backendName,
		Command:    spec.Command(),
		WorkingDir: spec.WorkingDir,
		ExitCode:   -1,
		StartedAt:  start,
		FinishedAt: finish,
	}
	if res != nil {
		rec.ExitCode = res.ExitCode
		rec.Completed = res.Completed
	}
	if execErr != nil {
		rec.ErrorKind = model.ErrorKind(execErr)
		rec.Error = execErr.Error()
	}

	// The run can end because the context was cancelled, the history is still stored.
	if err := s.repo.CreateExecution(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Errorf("Could not store execution %s on history: %s", rec.ID, err)
	}
}
