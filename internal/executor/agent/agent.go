package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/stepbridge/internal/agent"
	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

const backendName = "agent"

// DialFunc opens the stream to the agent.
type DialFunc func(ctx context.Context) (net.Conn, error)

// BackendConfig is the configuration for the agent backend.
type BackendConfig struct {
	// Dial opens the stream to the agent, the stream is reused by all the requests and
	// opened again when lost.
	Dial DialFunc
	// CancelGracePeriod is the time the agent has to confirm a cancellation before
	// the stream is closed.
	CancelGracePeriod time.Duration
	Logger            log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Dial == nil {
		return fmt.Errorf("dial is required")
	}
	if c.CancelGracePeriod == 0 {
		c.CancelGracePeriod = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Agent"})
	return nil
}

// TCPDialer returns a dial function for an agent listening on a TCP address.
func TCPDialer(addr string) DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Backend executes commands through an agent running on the execution target, over a
// single stream. Requests are executed one at a time.
type Backend struct {
	dial        DialFunc
	cancelGrace time.Duration
	logger      log.Logger

	slot   *executor.Slot
	nextID atomic.Uint64
	// Guarded by slot.
	stream *stream
}

type stream struct {
	conn net.Conn
	enc  *agent.Encoder
	dec  *agent.Decoder
}

// NewBackend creates a new agent backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		dial:        cfg.Dial,
		cancelGrace: cfg.CancelGracePeriod,
		logger:      cfg.Logger,
		slot:        executor.NewSlot(),
	}, nil
}

func (b *Backend) Name() string { return backendName }

// SupportsConcurrentExecute returns false, the agent stream can only carry one execution at a time.
func (b *Backend) SupportsConcurrentExecute() bool { return false }

// Close closes the agent stream.
func (b *Backend) Close() error {
	if err := b.slot.Acquire(context.Background()); err != nil {
		return err
	}
	defer b.slot.Release()

	if b.stream == nil {
		return nil
	}
	err := b.stream.conn.Close()
	b.stream = nil
	return err
}

// Execute sends the command to the agent and streams back its output.
func (b *Backend) Execute(ctx context.Context, spec model.CommandSpec) (*model.ExecResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := executor.WithTimeout(ctx, spec)
	defer cancel()

	var stdin []byte
	if spec.Stdin != nil {
		data, err := io.ReadAll(spec.Stdin)
		if err != nil {
			return nil, model.NewExecError(model.ErrSpawnFailure, backendName, fmt.Errorf("could not read stdin: %w", err), nil)
		}
		stdin = data
	}

	if err := b.slot.Acquire(ctx); err != nil {
		return nil, executor.ContextError(ctx, backendName, nil)
	}
	defer b.slot.Release()

	s, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	id := b.nextID.Add(1)
	req := agent.Request{ID: id, Op: agent.OpExec, Exec: &agent.ExecRequest{
		Args:       spec.Args,
		Shell:      spec.Shell,
		WorkingDir: spec.WorkingDir,
		Env:        spec.Env.Copy(),
		TimeoutMS:  spec.Timeout.Milliseconds(),
		Stdin:      stdin,
	}}
	if err := s.enc.Encode(req); err != nil {
		return nil, b.lost(ctx, fmt.Errorf("could not send request: %w", err), nil)
	}

	b.logger.Debugf("Executing %s", spec.Command())

	// Ask the agent to cancel if the context ends while we wait for the result.
	waitDone := make(chan struct{})
	watcherDone := make(chan struct{})
	defer func() {
		close(waitDone)
		<-watcherDone
		_ = s.conn.SetReadDeadline(time.Time{})
	}()
	go func() {
		defer close(watcherDone)
		select {
		case <-waitDone:
		case <-ctx.Done():
			if err := s.enc.Encode(agent.Request{ID: id, Op: agent.OpCancel}); err != nil {
				b.logger.Warningf("Could not send cancellation: %v", err)
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(b.cancelGrace))
		}
	}()

	capture := executor.NewCapture(spec)
	for {
		var resp agent.Response
		if err := s.dec.Decode(&resp); err != nil {
			return nil, b.lost(ctx, fmt.Errorf("could not read response: %w", err), capture.Partial())
		}
		if resp.ID != id {
			b.logger.Debugf("Ignoring response for request %d", resp.ID)
			continue
		}

		switch resp.Type {
		case agent.TypeStdout:
			_, _ = capture.Stdout().Write(resp.Data)
		case agent.TypeStderr:
			_, _ = capture.Stderr().Write(resp.Data)
		case agent.TypeExit:
			if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
				return nil, ctxErr
			}
			return capture.Result(resp.ExitCode, true), nil
		case agent.TypeError:
			if ctxErr := executor.ContextError(ctx, backendName, capture.Partial()); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, remoteError(resp, capture.Partial())
		default:
			return nil, b.lost(ctx, fmt.Errorf("unexpected response type %q", resp.Type), capture.Partial())
		}
	}
}

// Environ returns the environment of the agent process.
func (b *Backend) Environ(ctx context.Context) (model.EnvSnapshot, error) {
	resp, err := b.call(ctx, agent.OpEnviron, agent.TypeEnviron)
	if err != nil {
		return nil, err
	}
	env := model.EnvSnapshot(resp.Env)
	if env == nil {
		env = model.EnvSnapshot{}
	}
	return env, nil
}

// Platform returns the platform the agent runs on.
func (b *Backend) Platform(ctx context.Context) (ocispec.Platform, error) {
	resp, err := b.call(ctx, agent.OpPlatform, agent.TypePlatform)
	if err != nil {
		return ocispec.Platform{}, err
	}
	return ocispec.Platform{OS: resp.OS, Architecture: resp.Arch}, nil
}

// Check checks the agent is reachable.
func (b *Backend) Check(ctx context.Context) []model.CheckResult {
	p, err := b.Platform(ctx)
	if err != nil {
		return []model.CheckResult{{ID: "agent_stream", Message: fmt.Sprintf("Agent not reachable: %s", err), Status: model.CheckStatusError}}
	}
	return []model.CheckResult{{ID: "agent_stream", Message: fmt.Sprintf("Agent ready (%s/%s)", p.OS, p.Architecture), Status: model.CheckStatusOK}}
}

func (b *Backend) call(ctx context.Context, op, expType string) (*agent.Response, error) {
	if err := b.slot.Acquire(ctx); err != nil {
		return nil, executor.ContextError(ctx, backendName, nil)
	}
	defer b.slot.Release()

	s, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
		defer func() { _ = s.conn.SetDeadline(time.Time{}) }()
	}

	id := b.nextID.Add(1)
	if err := s.enc.Encode(agent.Request{ID: id, Op: op}); err != nil {
		return nil, b.lost(ctx, fmt.Errorf("could not send request: %w", err), nil)
	}

	for {
		var resp agent.Response
		if err := s.dec.Decode(&resp); err != nil {
			return nil, b.lost(ctx, fmt.Errorf("could not read response: %w", err), nil)
		}
		if resp.ID != id {
			continue
		}

		switch resp.Type {
		case expType:
			return &resp, nil
		case agent.TypeError:
			return nil, remoteError(resp, nil)
		default:
			return nil, b.lost(ctx, fmt.Errorf("unexpected response type %q", resp.Type), nil)
		}
	}
}

// connect returns the current stream or opens a new one. Must be called holding the slot.
func (b *Backend) connect(ctx context.Context) (*stream, error) {
	if b.stream != nil {
		return b.stream, nil
	}

	conn, err := b.dial(ctx)
	if err != nil {
		if ctxErr := executor.ContextError(ctx, backendName, nil); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewExecError(model.ErrBackendUnavailable, backendName, fmt.Errorf("could not connect to agent: %w", err), nil)
	}

	b.stream = &stream{conn: conn, enc: agent.NewEncoder(conn), dec: agent.NewDecoder(conn)}
	return b.stream, nil
}

// lost drops the current stream after a failure. Must be called holding the slot.
func (b *Backend) lost(ctx context.Context, err error, partial *model.ExecResult) error {
	if b.stream != nil {
		_ = b.stream.conn.Close()
		b.stream = nil
	}

	if ctxErr := executor.ContextError(ctx, backendName, partial); ctxErr != nil {
		return ctxErr
	}
	return model.NewExecError(model.ErrBackendUnavailable, backendName, err, partial)
}

func remoteError(resp agent.Response, partial *model.ExecResult) error {
	cause := errors.New(resp.Error)
	switch resp.ErrorKind {
	case model.ErrorKindSpawnFailure:
		return model.NewExecError(model.ErrSpawnFailure, backendName, cause, partial)
	case model.ErrorKindTimeoutExceeded:
		return model.NewExecError(model.ErrTimeoutExceeded, backendName, cause, partial)
	case model.ErrorKindCancelled:
		return model.NewExecError(model.ErrCancelled, backendName, cause, partial)
	case model.ErrorKindInvalid:
		return fmt.Errorf("agent rejected the request: %s: %w", resp.Error, model.ErrNotValid)
	default:
		return model.NewExecError(model.ErrBackendUnavailable, backendName, cause, partial)
	}
}
