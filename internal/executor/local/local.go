package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

const backendName = "local"

// BackendConfig is the configuration for the local backend.
type BackendConfig struct {
	// DefaultWorkingDir is used when the command doesn't set a working directory,
	// defaults to the process working directory.
	DefaultWorkingDir string
	// CreateWorkingDir creates the command working directory if it's missing.
	CreateWorkingDir bool
	// KillGracePeriod is the time given to the process output to be closed after
	// killing it, and to shell mode commands to exit after being interrupted.
	KillGracePeriod time.Duration
	Logger          log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.DefaultWorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("could not get working directory: %w", err)
		}
		c.DefaultWorkingDir = wd
	}
	if c.KillGracePeriod == 0 {
		c.KillGracePeriod = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Local"})
	return nil
}

// Backend runs commands as child processes of the bridge process.
type Backend struct {
	cfg    BackendConfig
	logger log.Logger
}

// NewBackend creates a new local backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{cfg: cfg, logger: cfg.Logger}, nil
}

func (b *Backend) Name() string { return backendName }

// Platform returns the platform the bridge process runs on.
func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	return ocispec.Platform{OS: runtime.GOOS, Architecture: runtime.GOARCH}, nil
}

// Execute runs the command as a child process, or with the embedded shell interpreter
// for shell mode commands.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	if err := executor.ContextError(ctx, backendName, nil); err != nil {
		return nil, err
	}

	dir, err := b.workingDir(spec.WorkingDir)
	if err != nil {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, nil)
	}

	logger := b.logger.WithValues(log.Kv{"dir": dir})
	logger.Debugf("Executing %s", spec.Command())

	if spec.Shell != "" {
		return b.executeShell(ctx, dir, spec)
	}
	return b.executeArgv(ctx, dir, spec)
}

func (b *Backend) workingDir(dir string) (string, error) {
	if dir == "" {
		return b.cfg.DefaultWorkingDir, nil
	}
	// Relative dirs are relative to the backend default, like on remote targets.
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(b.cfg.DefaultWorkingDir, dir)
	}

	if b.cfg.CreateWorkingDir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("could not create working directory: %w", err)
		}
	}

	st, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("working directory %q is not a directory", dir)
	}

	return dir, nil
}

func (b *Backend) executeArgv(ctx context.Context, dir string, spec model.CommandSpec) (*model.ExecResult, error) {
	// The executable is looked up with the command PATH, not the bridge one.
	path, err := interp.LookPathDir(dir, expand.ListEnviron(spec.Env.Slice()...), spec.Args[0])
	if err != nil {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, nil)
	}

	capture := executor.NewCapture(spec)

	cmd := exec.CommandContext(ctx, path, spec.Args[1:]...)
	cmd.Args[0] = spec.Args[0]
	cmd.Dir = dir
	cmd.Env = spec.Env.Slice()
	cmd.Stdin = spec.Stdin
	cmd.Stdout = capture.Stdout()
	cmd.Stderr = capture.Stderr()
	cmd.WaitDelay = b.cfg.KillGracePeriod
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if ctxErr := executor.ContextError(ctx, backendName, nil); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, nil)
	}

	err = cmd.Wait()

	// The process was killed by us.
	if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
		return nil, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return capture.Result(0, true), nil
	case errors.As(err, &exitErr):
		return capture.Result(exitErr.ExitCode(), true), nil
	case errors.Is(err, exec.ErrWaitDelay):
		// The process ended but something else kept the output open.
		b.logger.Warningf("Command output was still open after the process ended")
		return capture.Result(cmd.ProcessState.ExitCode(), true), nil
	default:
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, err, capture.Partial())
	}
}

func (b *Backend) executeShell(ctx context.Context, dir string, spec model.CommandSpec) (*model.ExecResult, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(spec.Shell), "command")
	if err != nil {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, fmt.Errorf("could not parse shell command: %w", err), nil)
	}

	capture := executor.NewCapture(spec)
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(spec.Env.Slice()...)),
		interp.StdIO(spec.Stdin, capture.Stdout(), capture.Stderr()),
		interp.ExecHandlers(func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return interp.DefaultExecHandler(b.cfg.KillGracePeriod)
		}),
	)
	if err != nil {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, fmt.Errorf("could not create shell interpreter: %w", err), nil)
	}

	err = runner.Run(ctx, prog)

	if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
		return nil, ctxErr
	}

	var exitStatus interp.ExitStatus
	switch {
	case err == nil:
		return capture.Result(0, true), nil
	case errors.As(err, &exitStatus):
		return capture.Result(int(exitStatus), true), nil
	default:
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, capture.Partial())
	}
}

// Check checks the default working directory is usable.
func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	if _, err := b.workingDir(b.cfg.DefaultWorkingDir); err != nil {
		return []model.CheckResult{{ID: "local_working_dir", Message: err.Error(), Status: model.CheckStatusError}}
	}
	return []model.CheckResult{{ID: "local_working_dir", Message: fmt.Sprintf("Default working directory %s", b.cfg.DefaultWorkingDir), Status: model.CheckStatusOK}}
}
