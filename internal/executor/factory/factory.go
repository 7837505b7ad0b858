// Package factory creates the execution backends bound to steps.
package factory

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/slok/stepbridge/internal/executor"
	agentexec "github.com/slok/stepbridge/internal/executor/agent"
	"github.com/slok/stepbridge/internal/executor/docker"
	"github.com/slok/stepbridge/internal/executor/kube"
	"github.com/slok/stepbridge/internal/executor/local"
	sshexec "github.com/slok/stepbridge/internal/executor/ssh"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	internalssh "github.com/slok/stepbridge/internal/ssh"
)

// NewBackend creates the backend of a binding. The returned function releases
// the backend connections.
func NewBackend(ctx context.Context, b model.BackendBinding, logger log.Logger) (executor.Backend, func(), error) {
	noop := func() {}

	switch b.Type {
	case model.BackendTypeLocal:
		var cfg model.LocalBinding
		if b.Local != nil {
			cfg = *b.Local
		}
		backend, err := local.NewBackend(local.BackendConfig{
			DefaultWorkingDir: cfg.DefaultWorkingDir,
			CreateWorkingDir:  cfg.CreateWorkingDir,
			Logger:            logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create local backend: %w", err)
		}
		return backend, noop, nil

	case model.BackendTypeDocker:
		backend, err := docker.NewBackend(docker.BackendConfig{
			Container: b.Docker.Container,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create docker backend: %w", err)
		}
		return backend, noop, nil

	case model.BackendTypeKube:
		backend, err := kube.NewBackend(kube.BackendConfig{
			Kubeconfig: b.Kube.Kubeconfig,
			Namespace:  b.Kube.Namespace,
			Pod:        b.Kube.Pod,
			Container:  b.Kube.Container,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create kube backend: %w", err)
		}
		return backend, noop, nil

	case model.BackendTypeSSH:
		cli, err := newSSHClient(ctx, *b.SSH, logger)
		if err != nil {
			return nil, nil, err
		}
		backend, err := sshexec.NewBackend(sshexec.BackendConfig{
			Client:           cli,
			CreateWorkingDir: b.SSH.CreateWorkingDir,
			Logger:           logger,
		})
		if err != nil {
			_ = cli.Close()
			return nil, nil, fmt.Errorf("could not create ssh backend: %w", err)
		}
		return backend, func() { _ = cli.Close() }, nil

	case model.BackendTypeAgent:
		dial := agentexec.TCPDialer(b.Agent.Address)
		closeSSH := noop
		if b.Agent.SSH != nil {
			cli, err := newSSHClient(ctx, *b.Agent.SSH, logger)
			if err != nil {
				return nil, nil, err
			}
			addr := b.Agent.Address
			dial = func(ctx context.Context) (net.Conn, error) { return cli.Dial(ctx, "tcp", addr) }
			closeSSH = func() { _ = cli.Close() }
		}
		backend, err := agentexec.NewBackend(agentexec.BackendConfig{
			Dial:   dial,
			Logger: logger,
		})
		if err != nil {
			closeSSH()
			return nil, nil, fmt.Errorf("could not create agent backend: %w", err)
		}
		return backend, func() {
			_ = backend.Close()
			closeSSH()
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown backend %q: %w", b.Type, model.ErrNotValid)
}

func newSSHClient(ctx context.Context, b model.SSHBinding, logger log.Logger) (*internalssh.Client, error) {
	key, err := os.ReadFile(b.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("could not read ssh private key: %w", err)
	}

	cli, err := internalssh.NewClient(ctx, internalssh.ClientConfig{
		Host:           b.Host,
		Port:           b.Port,
		User:           b.User,
		PrivateKey:     key,
		KnownHostsFile: b.KnownHostsFile,
		Logger:         logger,
	})
	if err != nil {
		return nil, model.NewExecError(model.ErrBackendUnavailable, string(model.BackendTypeSSH), err, nil)
	}
	return cli, nil
}
