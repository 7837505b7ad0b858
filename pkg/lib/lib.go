package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/stepbridge/internal/app/history"
	"github.com/slok/stepbridge/internal/bridge"
	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/executor/factory"
	"github.com/slok/stepbridge/internal/executor/fake"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/script"
	"github.com/slok/stepbridge/internal/storage"
	"github.com/slok/stepbridge/internal/storage/memory"
	"github.com/slok/stepbridge/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// At minimum, an empty Config{} runs the commands on the local host.
type Config struct {
	// Backend is the execution backend. Default: [BackendLocal].
	Backend BackendType
	// Backend specific settings, only the one of the selected backend is used.
	Local  *LocalConfig
	Docker *DockerConfig
	Kube   *KubeConfig
	SSH    *SSHConfig
	Agent  *AgentConfig

	// StepID identifies the step on the execution history.
	StepID string
	// DefaultTimeout applies to the commands that don't set one. Default: no timeout.
	DefaultTimeout time.Duration

	// DBPath is the SQLite execution history database path.
	// Default: empty, executions are recorded in memory for the client lifetime.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default timeout can't be negative: %w", ErrNotValid)
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

func (c Config) binding() (model.BackendBinding, error) {
	b := model.BackendBinding{
		Type:           model.BackendType(c.Backend),
		StepID:         c.StepID,
		DefaultTimeout: c.DefaultTimeout,
	}

	switch c.Backend {
	case BackendLocal:
		b.Local = &model.LocalBinding{}
		if c.Local != nil {
			b.Local = &model.LocalBinding{DefaultWorkingDir: c.Local.WorkingDir, CreateWorkingDir: c.Local.CreateWorkingDir}
		}
	case BackendDocker:
		if c.Docker == nil || c.Docker.Container == "" {
			return b, fmt.Errorf("docker container is required: %w", ErrNotValid)
		}
		b.Docker = &model.DockerBinding{Container: c.Docker.Container}
	case BackendKube:
		if c.Kube == nil || c.Kube.Pod == "" {
			return b, fmt.Errorf("kube pod is required: %w", ErrNotValid)
		}
		b.Kube = &model.KubeBinding{Kubeconfig: c.Kube.Kubeconfig, Namespace: c.Kube.Namespace, Pod: c.Kube.Pod, Container: c.Kube.Container}
	case BackendSSH:
		s, err := c.SSH.binding()
		if err != nil {
			return b, err
		}
		b.SSH = s
	case BackendAgent:
		if c.Agent == nil || c.Agent.Address == "" {
			return b, fmt.Errorf("agent address is required: %w", ErrNotValid)
		}
		b.Agent = &model.AgentBinding{Address: c.Agent.Address}
		if c.Agent.SSH != nil {
			s, err := c.Agent.SSH.binding()
			if err != nil {
				return b, err
			}
			b.Agent.SSH = s
		}
	default:
		return b, fmt.Errorf("unsupported backend type: %s: %w", c.Backend, ErrNotValid)
	}

	return b, nil
}

func (c *SSHConfig) binding() (*model.SSHBinding, error) {
	if c == nil || c.Host == "" || c.User == "" || c.PrivateKeyFile == "" {
		return nil, fmt.Errorf("ssh host, user and private key file are required: %w", ErrNotValid)
	}
	return &model.SSHBinding{
		Host:             c.Host,
		Port:             c.Port,
		User:             c.User,
		PrivateKeyFile:   c.PrivateKeyFile,
		KnownHostsFile:   c.KnownHostsFile,
		CreateWorkingDir: c.CreateWorkingDir,
	}, nil
}

// Client is the main SDK entry point to run commands on a backend.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use, commands of backends that can only run
// one command at a time are queued.
type Client struct {
	backend executor.Backend
	bridge  *bridge.Service
	history *history.Service
	logger  log.Logger
	closers []func() error
}

// New creates a new SDK client bound to a backend.
//
// The caller must call [Client.Close] when done to release the backend and
// database connections.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{logger: cfg.Logger}

	var stepID string
	switch cfg.Backend {
	case BackendFake:
		b, err := fake.NewBackend(fake.BackendConfig{Env: model.EnvSnapshot{}, Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create fake backend: %w", err)
		}
		c.backend = b
		stepID = cfg.StepID
	default:
		binding, err := cfg.binding()
		if err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		b, closeBackend, err := factory.NewBackend(ctx, binding, cfg.Logger)
		if err != nil {
			return nil, err
		}
		c.backend = b
		c.closers = append(c.closers, func() error { closeBackend(); return nil })
		stepID = binding.StepID
	}

	svcCfg := bridge.ServiceConfig{
		Backend:        c.backend,
		StepID:         stepID,
		DefaultTimeout: cfg.DefaultTimeout,
		Logger:         cfg.Logger,
	}
	var repo storage.Repository
	if cfg.DBPath != "" {
		r, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.DBPath,
			Logger: cfg.Logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		c.closers = append(c.closers, r.Close)
		repo = r
	} else {
		r, err := memory.NewRepository(memory.RepositoryConfig{Logger: cfg.Logger})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		repo = r
	}
	svcCfg.Repository = repo

	hist, err := history.NewService(history.ServiceConfig{Repository: repo, Logger: cfg.Logger})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("could not create history service: %w", err)
	}
	c.history = hist

	svc, err := bridge.NewService(svcCfg)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("could not create bridge: %w", err)
	}
	c.bridge = svc

	return c, nil
}

// Close releases resources held by the client. After Close returns, the client
// must not be used.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Platform returns the operating system family of the backend, [PlatformUnknown]
// when it can't be determined.
func (c *Client) Platform(ctx context.Context) Platform {
	return Platform(c.bridge.Platform(ctx))
}

// Environment returns the ambient environment commands inherit on the backend.
func (c *Client) Environment(ctx context.Context) (map[string]string, error) {
	env, err := c.bridge.Environment(ctx)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Run executes a command on the backend and waits for it to end.
//
// A command that runs to completion returns its result, whatever its exit code.
func (c *Client) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	req := bridge.RunRequest{
		Args:       opts.Args,
		Shell:      opts.Shell,
		WorkingDir: opts.WorkingDir,
		Timeout:    opts.Timeout,
		Stdin:      opts.Stdin,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	}
	if len(opts.Env) > 0 || opts.ClearEnv {
		req.Env = model.ReplaceEnv(opts.Env)
	}

	res, err := c.bridge.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return fromExecResult(res), nil
}

// RunScript runs a Starlark step script on the backend.
func (c *Client) RunScript(ctx context.Context, filename string, src []byte, opts ScriptOpts) error {
	runner, err := script.NewRunner(script.RunnerConfig{
		Bridge:  c.bridge,
		Output:  opts.Output,
		Timeout: opts.Timeout,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", err, ErrNotValid)
	}
	return runner.Run(ctx, filename, src)
}

// History returns the recorded executions, newest first.
func (c *Client) History(ctx context.Context, opts HistoryOpts) ([]ExecutionRecord, error) {
	records, err := c.history.Run(ctx, history.Request{StepID: opts.StepID, OnlyFailed: opts.OnlyFailed, Limit: opts.Limit})
	if err != nil {
		return nil, err
	}

	out := make([]ExecutionRecord, 0, len(records))
	for _, r := range records {
		out = append(out, fromExecutionRecord(r))
	}
	return out, nil
}

// Doctor runs the preflight checks of the backend.
func (c *Client) Doctor(ctx context.Context) []CheckResult {
	checker, ok := c.backend.(executor.Checker)
	if !ok {
		return []CheckResult{}
	}
	return fromCheckResults(checker.Check(ctx))
}
