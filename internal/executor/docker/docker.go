package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

const backendName = "docker"

// DockerClient is the subset of the Docker SDK client used by the backend.
type DockerClient interface {
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Info(ctx context.Context) (system.Info, error)
}

// BackendConfig is the configuration for the Docker backend.
type BackendConfig struct {
	// Container is the ID or name of the running container where commands are executed.
	Container string
	Client    DockerClient
	// KillPID kills a host process, used to terminate an execution that was cancelled,
	// defaults to a SIGKILL on unix hosts.
	KillPID func(pid int) error
	Logger  log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Container == "" {
		return fmt.Errorf("container is required")
	}
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.KillPID == nil {
		c.KillPID = killPID
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Docker", "container": c.Container})
	return nil
}

// Backend executes commands inside an already running Docker container.
type Backend struct {
	container string
	client    DockerClient
	killPID   func(pid int) error
	logger    log.Logger
}

// NewBackend creates a new Docker backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		container: cfg.Container,
		client:    cfg.Client,
		killPID:   cfg.KillPID,
		logger:    cfg.Logger,
	}, nil
}

func (b *Backend) Name() string { return backendName }

// Execute runs the command with a Docker exec. The command is wrapped so the environment
// is replaced instead of merged with the container one.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	if err := executor.ContextError(ctx, backendName, nil); err != nil {
		return nil, err
	}

	b.logger.Debugf("Executing %s", spec.Command())

	cmd := executor.NewPOSIXCommand(spec)
	exec, err := b.client.ContainerExecCreate(ctx, b.container, container.ExecOptions{
		Cmd:          cmd.Argv,
		AttachStdin:  spec.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, b.requestError(ctx, fmt.Errorf("could not create exec: %w", err), nil)
	}

	resp, err := b.client.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, b.requestError(ctx, fmt.Errorf("could not attach to exec: %w", err), nil)
	}
	defer resp.Close()

	if spec.Stdin != nil {
		go func() {
			_, _ = io.Copy(resp.Conn, spec.Stdin)
			_ = resp.CloseWrite()
		}()
	}

	capture := executor.NewCapture(spec)
	copyErr := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(capture.Stdout(), capture.Stderr(), resp.Reader)
		copyErr <- err
	}()

	select {
	case <-ctx.Done():
		resp.Close()
		<-copyErr
		b.kill(exec.ID)
		return nil, executor.ContextError(ctx, backendName, capture.Partial())
	case err := <-copyErr:
		if err != nil {
			return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("exec stream lost: %w", err), capture.Partial())
		}
	}

	inspect, err := b.waitExit(ctx, exec.ID)
	if err != nil {
		return nil, b.requestError(ctx, fmt.Errorf("could not inspect exec: %w", err), capture.Partial())
	}

	tail := capture.StderrTail()
	if msg, ok := spawnFailure(cmd, inspect.ExitCode, tail); ok {
		return nil, model.NewExecError(model.ErrSpawnFailure, backendName, errors.New(msg), capture.Partial())
	}

	return capture.Result(inspect.ExitCode, true), nil
}

// waitExit waits for the exec process to be reported as finished, the output stream
// can end slightly before the daemon updates the exec state.
func (b *Backend) waitExit(ctx context.Context, execID string) (container.ExecInspect, error) {
	for {
		inspect, err := b.client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return container.ExecInspect{}, err
		}
		if !inspect.Running {
			return inspect, nil
		}

		select {
		case <-ctx.Done():
			return container.ExecInspect{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// kill terminates a cancelled exec process, the daemon doesn't stop exec processes
// when their stream is closed.
func (b *Backend) kill(execID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inspect, err := b.client.ContainerExecInspect(ctx, execID)
	if err != nil {
		b.logger.Warningf("Could not inspect cancelled exec %s: %v", execID, err)
		return
	}
	if !inspect.Running || inspect.Pid == 0 {
		return
	}

	if err := b.killPID(inspect.Pid); err != nil {
		b.logger.Warningf("Could not kill cancelled exec %s process %d: %v", execID, inspect.Pid, err)
	}
}

func (b *Backend) requestError(ctx context.Context, err error, partial *model.ExecResult) error {
	if ctxErr := executor.ContextError(ctx, backendName, partial); ctxErr != nil {
		return ctxErr
	}
	if client.IsErrNotFound(err) {
		return model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("container %s: %w", b.container, err), partial)
	}
	return model.NewExecError(model.ErrBackendUnavailable, backendName, err, partial)
}

// Platform returns the platform of the Docker daemon.
func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	info, err := b.client.Info(ctx)
	if err != nil {
		return ocispec.Platform{}, model.NewExecError(model.ErrBackendUnavailable, backendName, err, nil)
	}

	return ocispec.Platform{OS: info.OSType, Architecture: normalizeArch(info.Architecture)}, nil
}

// Environ returns the environment the container was configured with.
func (b *Backend) Environ(ctx context.Context) (model.EnvSnapshot, error) {
	c, err := b.client.ContainerInspect(ctx, b.container)
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, err, nil)
	}
	if c.Config == nil {
		return model.EnvSnapshot{}, nil
	}

	return model.ParseEnviron(c.Config.Env), nil
}

// Check checks the daemon is reachable and the container is running.
func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{}

	info, err := b.client.Info(ctx)
	if err != nil {
		return append(results, model.CheckResult{ID: "docker_daemon", Message: fmt.Sprintf("Docker daemon not reachable: %s", err), Status: model.CheckStatusError})
	}
	results = append(results, model.CheckResult{ID: "docker_daemon", Message: fmt.Sprintf("Docker daemon %s (%s/%s)", info.ServerVersion, info.OSType, info.Architecture), Status: model.CheckStatusOK})

	c, err := b.client.ContainerInspect(ctx, b.container)
	switch {
	case err != nil:
		results = append(results, model.CheckResult{ID: "docker_container", Message: fmt.Sprintf("Container %s: %s", b.container, err), Status: model.CheckStatusError})
	case c.ContainerJSONBase == nil || c.State == nil || !c.State.Running:
		results = append(results, model.CheckResult{ID: "docker_container", Message: fmt.Sprintf("Container %s is not running", b.container), Status: model.CheckStatusError})
	default:
		results = append(results, model.CheckResult{ID: "docker_container", Message: fmt.Sprintf("Container %s is running", b.container), Status: model.CheckStatusOK})
	}

	return results
}

// spawnFailure returns the reason the command could not be started, either by the command
// wrapper or by the container runtime (e.g. the wrapper itself is missing).
func spawnFailure(cmd executor.POSIXCommand, exitCode int, stderrTail []byte) (string, bool) {
	if msg, ok := cmd.SpawnFailure(exitCode, stderrTail); ok {
		return msg, true
	}
	if (exitCode == 126 || exitCode == 127) && bytes.Contains(stderrTail, []byte("OCI runtime exec failed")) {
		return strings.TrimSpace(string(stderrTail)), true
	}
	return "", false
}

// normalizeArch maps kernel architecture names to Go ones.
func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
