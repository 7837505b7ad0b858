// Package script runs Starlark step scripts against an execution bridge.
//
// Scripts get a small capability surface modeled after the Python modules step
// authors know:
//
//	platform.system()                 -> "Linux" | "Darwin" | "Windows" | "Unknown"
//	os.environment                    -> dict with the ambient environment
//	os.getenv(name, default=None)     -> value of an ambient variable
//	subprocess.run(cmd, cwd=None, env=None, shell=False, timeout=None,
//	               check=False, capture_output=True, clear_env=False)
//	                                  -> struct(returncode, stdout, stderr, completed)
//
// The subprocess.run timeout is in seconds and must be positive, None runs the
// command without its own timeout.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/slok/stepbridge/internal/bridge"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

// ErrCommandFailed is returned by checked runs whose command exits with a non-zero code.
var ErrCommandFailed = errors.New("command returned non-zero exit status")

// Bridge is the execution bridge the scripts run commands with.
type Bridge interface {
	Platform(ctx context.Context) model.Platform
	Environment(ctx context.Context) (model.EnvSnapshot, error)
	Run(ctx context.Context, req bridge.RunRequest) (*model.ExecResult, error)
}

// RunnerConfig is the configuration for the script runner.
type RunnerConfig struct {
	Bridge Bridge
	// Output receives the script prints and the output of the commands that aren't captured.
	Output io.Writer
	// Timeout limits the whole script execution (optional).
	Timeout time.Duration
	Logger  log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Bridge == nil {
		return fmt.Errorf("bridge is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout can't be negative")
	}
	if c.Output == nil {
		c.Output = io.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "script.Runner"})
	return nil
}

// Runner runs step scripts, each script runs on its own Starlark thread.
type Runner struct {
	bridge  Bridge
	output  io.Writer
	timeout time.Duration
	logger  log.Logger
}

// NewRunner creates a new script runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		bridge:  cfg.Bridge,
		output:  cfg.Output,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Run executes a script. Execution errors of the commands are returned wrapped, so
// their kind can be checked with errors.Is.
func (r *Runner) Run(ctx context.Context, filename string, src []byte) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.timeout, model.ErrTimeoutExceeded)
		defer cancel()
	}

	logger := r.logger.WithValues(log.Kv{"script": filename})

	env, err := r.bridge.Environment(ctx)
	if err != nil {
		return fmt.Errorf("could not get script environment: %w", err)
	}

	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			if _, err := fmt.Fprintln(r.output, msg); err != nil {
				logger.Warningf("Could not write script output: %s", err)
			}
		},
	}
	thread.SetLocal(localStep, &step{ctx: ctx, bridge: r.bridge, output: r.output, env: env})

	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	predeclared := starlark.StringDict{
		"struct":     starlark.NewBuiltin("struct", starlarkstruct.Make),
		"platform":   platformModule(),
		"os":         osModule(env),
		"subprocess": subprocessModule(),
	}

	logger.Debugf("Running script")
	_, err = starlark.ExecFileOptions(fileOptions, thread, filename, src, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			logger.Debugf("Script failed:\n%s", evalErr.Backtrace())
		}
		return fmt.Errorf("script %s failed: %w", filename, contextError(ctx, err))
	}

	return nil
}

// contextError marks errors of scripts stopped by the context with the matching kind.
func contextError(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}

	kind := model.ErrCancelled
	if cause := context.Cause(ctx); errors.Is(cause, model.ErrTimeoutExceeded) || errors.Is(cause, context.DeadlineExceeded) {
		kind = model.ErrTimeoutExceeded
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
