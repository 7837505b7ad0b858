package ssh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"mvdan.cc/sh/v3/syntax"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	internalssh "github.com/slok/stepbridge/internal/ssh"
)

const backendName = "ssh"

// Client is the SSH client used by the backend.
type Client interface {
	Exec(ctx context.Context, command string, opts internalssh.ExecOpts) (int, error)
	MkdirAll(ctx context.Context, path string) error
}

// BackendConfig is the configuration for the SSH backend.
type BackendConfig struct {
	Client Client
	// CreateWorkingDir creates the command working directory if it's missing.
	CreateWorkingDir bool
	Logger           log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("ssh client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.SSH"})
	return nil
}

// Backend executes commands on a remote POSIX host over SSH.
type Backend struct {
	client           Client
	createWorkingDir bool
	logger           log.Logger
}

// NewBackend creates a new SSH backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		client:           cfg.Client,
		createWorkingDir: cfg.CreateWorkingDir,
		logger:           cfg.Logger,
	}, nil
}

func (b *Backend) Name() string { return backendName }

// Execute runs the command on a new SSH session.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	if err := executor.ContextError(ctx, backendName, nil); err != nil {
		return nil, err
	}

	cmd := executor.NewPOSIXCommand(spec)
	command, err := quoteCommand(cmd.Argv)
	if err != nil {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, nil)
	}

	if b.createWorkingDir && spec.WorkingDir != "" {
		if err := b.client.MkdirAll(ctx, spec.WorkingDir); err != nil {
			if ctxErr := executor.ContextError(ctx, backendName, nil); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, model.NewExecError(model.ErrSpawnFailure, backendName, err, nil)
		}
	}

	b.logger.Debugf("Executing %s", spec.Command())

	capture := executor.NewCapture(spec)
	exitCode, err := b.client.Exec(ctx, command, internalssh.ExecOpts{
		Stdin:  spec.Stdin,
		Stdout: capture.Stdout(),
		Stderr: capture.Stderr(),
	})

	if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, err, capture.Partial())
	}

	if msg, ok := cmd.SpawnFailure(exitCode, capture.StderrTail()); ok {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, errors.New(msg), capture.Partial())
	}

	return capture.Result(exitCode, true), nil
}

// Platform returns the platform of the remote host using `uname`.
func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	out, err := b.run(ctx, "uname -s -m")
	if err != nil {
		return ocispec.Platform{}, err
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		return ocispec.Platform{}, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("unexpected uname output: %q", out), nil)
	}

	return ocispec.Platform{OS: strings.ToLower(fields[0]), Architecture: normalizeArch(fields[1])}, nil
}

// Environ returns the environment of the remote login sessions.
func (b *Backend) Environ(ctx context.Context) (model.EnvSnapshot, error) {
	out, err := b.run(ctx, "env")
	if err != nil {
		return nil, err
	}
	return model.ParseEnviron(strings.Split(strings.TrimRight(out, "\n"), "\n")), nil
}

// Check checks commands can be executed on the remote host.
func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	p, err := b.Platform(ctx)
	if err != nil {
		return []model.CheckResult{{ID: "ssh_exec", Message: fmt.Sprintf("Could not execute commands over SSH: %s", err), Status: model.CheckStatusError}}
	}
	return []model.CheckResult{{ID: "ssh_exec", Message: fmt.Sprintf("SSH host ready (%s/%s)", p.OS, p.Architecture), Status: model.CheckStatusOK}}
}

func (b *Backend) run(ctx context.Context, command string) (string, error) {
	var stdout, stderr strings.Builder
	exitCode, err := b.client.Exec(ctx, command, internalssh.ExecOpts{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return "", model.NewExecError(model.ErrBackendUnavailable, backendName, err, nil)
	}
	if exitCode != 0 {
		return "", model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("%q exited with %d: %s", command, exitCode, strings.TrimSpace(stderr.String())), nil)
	}
	return stdout.String(), nil
}

// quoteCommand returns the command line of an argv, the SSH protocol only transports
// command lines that are interpreted by the remote user shell.
func quoteCommand(args []string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			// Non printable characters (e.g. multiline shell commands) are valid inside
			// single quotes, only NUL can't be sent.
			if strings.ContainsRune(arg, 0) {
				return "", fmt.Errorf("could not quote argument %q: %w", arg, err)
			}
			q = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return arch
	}
}
