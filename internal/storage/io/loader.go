package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/stepbridge/internal/model"
)

// BindingYAMLRepository loads backend bindings from YAML files.
type BindingYAMLRepository struct {
	fs fs.FS
}

// NewBindingYAMLRepository creates a new YAML binding repository.
func NewBindingYAMLRepository(filesystem fs.FS) *BindingYAMLRepository {
	return &BindingYAMLRepository{fs: filesystem}
}

// GetBinding loads a backend binding from a YAML file and returns a validated domain model.
func (r *BindingYAMLRepository) GetBinding(ctx context.Context, path string) (model.BackendBinding, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.BackendBinding{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.BackendBinding{}, ctx.Err()
	}

	var cfg BindingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.BackendBinding{}, fmt.Errorf("parsing YAML: %w", err)
	}

	b, err := cfg.Binding()
	if err != nil {
		return model.BackendBinding{}, fmt.Errorf("invalid configuration: %w: %w", err, model.ErrNotValid)
	}

	return b, nil
}

// BindingConfig represents the YAML structure of a backend binding.
type BindingConfig struct {
	Backend        string        `yaml:"backend"`
	Step           string        `yaml:"step"`
	DefaultTimeout string        `yaml:"default_timeout"`
	Local          *LocalConfig  `yaml:"local,omitempty"`
	Docker         *DockerConfig `yaml:"docker,omitempty"`
	Kube           *KubeConfig   `yaml:"kube,omitempty"`
	SSH            *SSHConfig    `yaml:"ssh,omitempty"`
	Agent          *AgentConfig  `yaml:"agent,omitempty"`
}

// LocalConfig represents the YAML structure of the local backend.
type LocalConfig struct {
	WorkingDir       string `yaml:"working_dir"`
	CreateWorkingDir bool   `yaml:"create_working_dir"`
}

// DockerConfig represents the YAML structure of the Docker backend.
type DockerConfig struct {
	Container string `yaml:"container"`
}

// KubeConfig represents the YAML structure of the Kubernetes backend.
type KubeConfig struct {
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
	Pod        string `yaml:"pod"`
	Container  string `yaml:"container"`
}

// SSHConfig represents the YAML structure of the SSH backend.
type SSHConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	User             string `yaml:"user"`
	PrivateKeyFile   string `yaml:"private_key_file"`
	KnownHostsFile   string `yaml:"known_hosts_file"`
	CreateWorkingDir bool   `yaml:"create_working_dir"`
}

// AgentConfig represents the YAML structure of the agent backend.
type AgentConfig struct {
	Address string     `yaml:"address"`
	SSH     *SSHConfig `yaml:"ssh,omitempty"`
}

// Binding validates the configuration and returns the backend binding.
func (c BindingConfig) Binding() (model.BackendBinding, error) {
	b := model.BackendBinding{
		Type:   model.BackendType(c.Backend),
		StepID: c.Step,
	}

	if c.DefaultTimeout != "" {
		d, err := time.ParseDuration(c.DefaultTimeout)
		if err != nil {
			return b, fmt.Errorf("default_timeout: %w", err)
		}
		if d < 0 {
			return b, fmt.Errorf("default_timeout must not be negative, got: %s", d)
		}
		b.DefaultTimeout = d
	}

	switch b.Type {
	case model.BackendTypeLocal:
		b.Local = &model.LocalBinding{}
		if c.Local != nil {
			b.Local.DefaultWorkingDir = c.Local.WorkingDir
			b.Local.CreateWorkingDir = c.Local.CreateWorkingDir
		}

	case model.BackendTypeDocker:
		if c.Docker == nil || c.Docker.Container == "" {
			return b, fmt.Errorf("docker container is required")
		}
		b.Docker = &model.DockerBinding{Container: c.Docker.Container}

	case model.BackendTypeKube:
		if c.Kube == nil || c.Kube.Pod == "" {
			return b, fmt.Errorf("kube pod is required")
		}
		b.Kube = &model.KubeBinding{
			Kubeconfig: c.Kube.Kubeconfig,
			Namespace:  c.Kube.Namespace,
			Pod:        c.Kube.Pod,
			Container:  c.Kube.Container,
		}

	case model.BackendTypeSSH:
		s, err := c.SSH.toModel()
		if err != nil {
			return b, fmt.Errorf("ssh: %w", err)
		}
		b.SSH = s

	case model.BackendTypeAgent:
		if c.Agent == nil || c.Agent.Address == "" {
			return b, fmt.Errorf("agent address is required")
		}
		b.Agent = &model.AgentBinding{Address: c.Agent.Address}
		if c.Agent.SSH != nil {
			s, err := c.Agent.SSH.toModel()
			if err != nil {
				return b, fmt.Errorf("agent ssh: %w", err)
			}
			b.Agent.SSH = s
		}

	case "":
		return b, fmt.Errorf("backend is required")

	default:
		return b, fmt.Errorf("unknown backend %q", c.Backend)
	}

	return b, nil
}

func (c *SSHConfig) toModel() (*model.SSHBinding, error) {
	if c == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if c.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if c.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if c.PrivateKeyFile == "" {
		return nil, fmt.Errorf("private_key_file is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", c.Port)
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
