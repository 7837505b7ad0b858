package model

import "time"

// BackendType is the kind of execution backend a step is bound to.
type BackendType string

const (
	BackendTypeLocal  BackendType = "local"
	BackendTypeDocker BackendType = "docker"
	BackendTypeKube   BackendType = "kube"
	BackendTypeSSH    BackendType = "ssh"
	BackendTypeAgent  BackendType = "agent"
)

// BackendBinding binds the steps of a pipeline to the target where their commands run.
type BackendBinding struct {
	Type BackendType
	// StepID identifies the step on the execution history (optional).
	StepID string
	// DefaultTimeout applies to commands that don't set one, zero means no timeout.
	DefaultTimeout time.Duration
	Local          *LocalBinding
	Docker         *DockerBinding
	Kube           *KubeBinding
	SSH            *SSHBinding
	Agent          *AgentBinding
}

// LocalBinding is the local backend configuration.
type LocalBinding struct {
	DefaultWorkingDir string
	CreateWorkingDir  bool
}

// DockerBinding is the Docker backend configuration.
type DockerBinding struct {
	Container string
}

// KubeBinding is the Kubernetes backend configuration.
type KubeBinding struct {
	Kubeconfig string
	Namespace  string
	Pod        string
	Container  string
}

// SSHBinding is the SSH backend configuration.
type SSHBinding struct {
	Host             string
	Port             int
	User             string
	PrivateKeyFile   string
	KnownHostsFile   string
	CreateWorkingDir bool
}

// AgentBinding is the agent backend configuration.
type AgentBinding struct {
	// Address is the TCP address of the agent.
	Address string
	// SSH tunnels the agent stream through an SSH connection when set.
	SSH *SSHBinding
}
