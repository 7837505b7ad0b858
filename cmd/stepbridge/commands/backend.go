package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/stepbridge/internal/model"
	storageio "github.com/slok/stepbridge/internal/storage/io"
)

// Binding returns the backend binding of the config file, or the one set with the flags.
// The step and default timeout flags override the config file values.
func (c *RootCommand) Binding(ctx context.Context) (model.BackendBinding, error) {
	if c.ConfigFile != "" {
		path, err := filepath.Abs(c.ConfigFile)
		if err != nil {
			return model.BackendBinding{}, fmt.Errorf("invalid config path: %w", err)
		}
		repo := storageio.NewBindingYAMLRepository(os.DirFS(filepath.Dir(path)))
		b, err := repo.GetBinding(ctx, filepath.Base(path))
		if err != nil {
			return model.BackendBinding{}, fmt.Errorf("could not load config %s: %w", c.ConfigFile, err)
		}
		if c.StepID != "" {
			b.StepID = c.StepID
		}
		if c.DefaultTimeout != 0 {
			b.DefaultTimeout = c.DefaultTimeout
		}
		return b, nil
	}

	cfg := storageio.BindingConfig{
		Backend: c.Backend,
		Step:    c.StepID,
		Local: &storageio.LocalConfig{
			WorkingDir:       c.Local.DefaultWorkingDir,
			CreateWorkingDir: c.Local.CreateWorkingDir,
		},
		Docker: &storageio.DockerConfig{Container: c.Docker.Container},
		Kube: &storageio.KubeConfig{
			Kubeconfig: c.Kube.Kubeconfig,
			Namespace:  c.Kube.Namespace,
			Pod:        c.Kube.Pod,
			Container:  c.Kube.Container,
		},
		Agent: &storageio.AgentConfig{Address: c.AgentAddress},
	}
	if c.DefaultTimeout != 0 {
		cfg.DefaultTimeout = c.DefaultTimeout.String()
	}

	ssh := &storageio.SSHConfig{
		Host:             c.SSH.Host,
		Port:             c.SSH.Port,
		User:             c.SSH.User,
		PrivateKeyFile:   c.SSH.PrivateKeyFile,
		KnownHostsFile:   c.SSH.KnownHostsFile,
		CreateWorkingDir: c.SSH.CreateWorkingDir,
	}
	cfg.SSH = ssh
	if c.SSH.Host != "" {
		cfg.Agent.SSH = ssh
	}

	b, err := cfg.Binding()
	if err != nil {
		return model.BackendBinding{}, fmt.Errorf("invalid backend flags: %w: %w", err, model.ErrNotValid)
	}
	return b, nil
}
