package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/slok/stepbridge/internal/environment"
	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
)

// ServerConfig is the configuration for the agent server.
type ServerConfig struct {
	// Backend runs the received commands, normally the local backend.
	Backend executor.Backend
	// Environment reports the agent environment, defaults to the process environment.
	Environment environment.Provider
	Logger      log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Environment == nil {
		c.Environment = environment.NewOSProvider()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Server"})
	return nil
}

// Server executes commands received over streams in the execution target, so a bridge
// that only has a single stream to the target (e.g. a port forward) can run commands on it.
type Server struct {
	backend executor.Backend
	env     environment.Provider
	logger  log.Logger
}

// NewServer creates a new agent server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		backend: cfg.Backend,
		env:     cfg.Environment,
		logger:  cfg.Logger,
	}, nil
}

// Serve accepts connections until the context is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	s.logger.Infof("Agent listening on %s", l.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("could not accept connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn handles the requests of a single stream, one at a time, until the stream
// is closed. A running execution is cancelled when the stream is lost.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriter) {
	logger := s.logger
	if c, ok := conn.(net.Conn); ok {
		logger = logger.WithValues(log.Kv{"remote": c.RemoteAddr().String()})
	}
	logger.Debugf("Stream connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	enc := NewEncoder(conn)
	dec := NewDecoder(conn)

	// Read requests in the background so cancellations are received while executing.
	requests := make(chan Request)
	go func() {
		defer close(requests)
		for {
			var req Request
			if err := dec.Decode(&req); err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warningf("Could not read request: %v", err)
				}
				cancel()
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range requests {
		var err error
		switch req.Op {
		case OpExec:
			err = s.exec(ctx, enc, req, requests)
		case OpEnviron:
			err = s.environ(ctx, enc, req)
		case OpPlatform:
			err = s.platform(ctx, enc, req)
		case OpCancel:
			// Nothing running.
		default:
			err = enc.Encode(Response{ID: req.ID, Type: TypeError, ErrorKind: model.ErrorKindInvalid, Error: fmt.Sprintf("unknown operation %q", req.Op)})
		}
		if err != nil {
			logger.Warningf("Could not write response: %v", err)
			return
		}
	}

	logger.Debugf("Stream disconnected")
}

func (s *Server) exec(ctx context.Context, enc *Encoder, req Request, requests <-chan Request) error {
	if req.Exec == nil {
		return enc.Encode(Response{ID: req.ID, Type: TypeError, ErrorKind: model.ErrorKindInvalid, Error: "missing exec request"})
	}

	spec := model.CommandSpec{
		Args:       req.Exec.Args,
		Shell:      req.Exec.Shell,
		WorkingDir: req.Exec.WorkingDir,
		Env:        model.EnvSnapshot(req.Exec.Env),
		Timeout:    time.Duration(req.Exec.TimeoutMS) * time.Millisecond,
		Stdout:     frameWriter{enc: enc, id: req.ID, typ: TypeStdout},
		Stderr:     frameWriter{enc: enc, id: req.ID, typ: TypeStderr},
	}
	if req.Exec.Stdin != nil {
		spec.Stdin = bytes.NewReader(req.Exec.Stdin)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		res *model.ExecResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := s.backend.Execute(ctx, spec)
		done <- result{res: res, err: err}
	}()

	for {
		select {
		case r := <-done:
			if r.err != nil {
				return enc.Encode(Response{ID: req.ID, Type: TypeError, ErrorKind: model.ErrorKind(r.err), Error: r.err.Error()})
			}
			return enc.Encode(Response{ID: req.ID, Type: TypeExit, ExitCode: r.res.ExitCode})

		case next, ok := <-requests:
			switch {
			case !ok:
				// Stream lost, stop the execution, nobody will read the result.
				cancel()
				<-done
				return nil
			case next.Op == OpCancel && next.ID == req.ID:
				s.logger.Debugf("Execution %d cancelled", req.ID)
				cancel()
			default:
				err := enc.Encode(Response{ID: next.ID, Type: TypeError, ErrorKind: model.ErrorKindInvalid, Error: "agent is busy executing another command"})
				if err != nil {
					cancel()
					<-done
					return err
				}
			}
		}
	}
}

func (s *Server) environ(ctx context.Context, enc *Encoder, req Request) error {
	env, err := s.env.Ambient(ctx)
	if err != nil {
		return enc.Encode(Response{ID: req.ID, Type: TypeError, ErrorKind: model.ErrorKind(err), Error: err.Error()})
	}
	return enc.Encode(Response{ID: req.ID, Type: TypeEnviron, Env: env})
}

func (s *Server) platform(ctx context.Context, enc *Encoder, req Request) error {
	p, err := s.backend.Platform(ctx)
	if err != nil {
		return enc.Encode(Response{ID: req.ID, Type: TypeError, ErrorKind: model.ErrorKind(err), Error: err.Error()})
	}
	return enc.Encode(Response{ID: req.ID, Type: TypePlatform, OS: p.OS, Arch: p.Architecture})
}
