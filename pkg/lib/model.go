package lib

import (
	"io"
	"time"

	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/script"
)

// BackendType identifies the execution backend implementation.
type BackendType string

const (
	// BackendLocal runs the commands as child processes of the current process.
	BackendLocal BackendType = "local"
	// BackendDocker runs the commands inside an already running Docker container.
	BackendDocker BackendType = "docker"
	// BackendKube runs the commands inside a container of an already scheduled pod.
	BackendKube BackendType = "kube"
	// BackendSSH runs the commands on a host over SSH.
	BackendSSH BackendType = "ssh"
	// BackendAgent runs the commands through a stepbridge agent.
	BackendAgent BackendType = "agent"
	// BackendFake runs nothing, commands succeed without output.
	// Use this for unit testing without infrastructure dependencies.
	BackendFake BackendType = "fake"
)

// LocalConfig contains the local backend settings.
type LocalConfig struct {
	// WorkingDir is used by commands that don't set one. Default: current directory.
	WorkingDir string
	// CreateWorkingDir creates missing working directories.
	CreateWorkingDir bool
}

// DockerConfig contains the Docker backend settings.
type DockerConfig struct {
	// Container is the name or ID of the running container.
	Container string
}

// KubeConfig contains the Kubernetes backend settings.
type KubeConfig struct {
	// Kubeconfig is the kubeconfig path. Default: ~/.kube/config or in-cluster.
	Kubeconfig string
	// Namespace of the pod. Default: "default".
	Namespace string
	// Pod is the name of the pod.
	Pod string
	// Container is the pod container, optional for single container pods.
	Container string
}

// SSHConfig contains the SSH backend settings.
type SSHConfig struct {
	Host string
	// Port is the SSH port. Default: 22.
	Port int
	User string
	// PrivateKeyFile is the path to the PEM private key.
	PrivateKeyFile string
	// KnownHostsFile verifies the host key, any key is accepted when empty.
	KnownHostsFile string
	// CreateWorkingDir creates missing working directories.
	CreateWorkingDir bool
}

// AgentConfig contains the agent backend settings.
type AgentConfig struct {
	// Address is the TCP address of the agent.
	Address string
	// SSH tunnels the agent connection through an SSH host when set.
	SSH *SSHConfig
}

// Platform is the operating system family of a backend.
type Platform string

const (
	PlatformLinux   Platform = Platform(model.PlatformLinux)
	PlatformDarwin  Platform = Platform(model.PlatformDarwin)
	PlatformWindows Platform = Platform(model.PlatformWindows)
	PlatformUnknown Platform = Platform(model.PlatformUnknown)
)

// RunOpts are the options of a command execution.
type RunOpts struct {
	// Args is the program and its arguments, exclusive with Shell.
	Args []string
	// Shell is a shell command line, exclusive with Args.
	Shell string
	// WorkingDir of the command. Default: the backend working directory.
	WorkingDir string
	// Env replaces the ambient environment when not empty.
	Env map[string]string
	// ClearEnv runs the command without the ambient environment.
	ClearEnv bool
	// Timeout of the command, zero uses Config.DefaultTimeout.
	Timeout time.Duration
	Stdin   io.Reader
	// Stdout and Stderr receive the output as it's produced, the output not streamed
	// is returned on the result.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the result of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// Completed is false on the partial results of failed executions.
	Completed bool
	Duration  time.Duration
}

func fromExecResult(r *model.ExecResult) *Result {
	if r == nil {
		return nil
	}
	return &Result{
		ExitCode:  r.ExitCode,
		Stdout:    r.Stdout,
		Stderr:    r.Stderr,
		Completed: r.Completed,
		Duration:  r.Duration,
	}
}

// ScriptOpts are the options of a script execution.
type ScriptOpts struct {
	// Output receives the script prints and the output of the commands not captured.
	// Default: discarded.
	Output io.Writer
	// Timeout limits the whole script. Default: no timeout.
	Timeout time.Duration
}

// ExecutionRecord is an entry of the execution history.
type ExecutionRecord struct {
	ID         string
	StepID     string
	Backend    string
	Command    string
	WorkingDir string
	ExitCode   int
	Completed  bool
	// ErrorKind is empty for executions that ran to completion.
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func fromExecutionRecord(r model.ExecutionRecord) ExecutionRecord {
	return ExecutionRecord{
		ID:         r.ID,
		StepID:     r.StepID,
		Backend:    r.Backend,
		Command:    r.Command,
		WorkingDir: r.WorkingDir,
		ExitCode:   r.ExitCode,
		Completed:  r.Completed,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// HistoryOpts are the options to query the execution history.
type HistoryOpts struct {
	StepID     string
	OnlyFailed bool
	// Limit is the max number of records, newest first. Default: unlimited.
	Limit int
}

// CheckStatus is the status of a preflight check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = CheckStatus(model.CheckStatusOK)
	CheckStatusWarning CheckStatus = CheckStatus(model.CheckStatusWarning)
	CheckStatusError   CheckStatus = CheckStatus(model.CheckStatusError)
)

// CheckResult is the result of a single preflight check.
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

func fromCheckResults(rs []model.CheckResult) []CheckResult {
	out := make([]CheckResult, 0, len(rs))
	for _, r := range rs {
		out = append(out, CheckResult{ID: r.ID, Message: r.Message, Status: CheckStatus(r.Status)})
	}
	return out
}

var (
	// ErrSpawnFailure is returned when the command couldn't be started.
	ErrSpawnFailure = model.ErrSpawnFailure
	// ErrTimeoutExceeded is returned when the command timeout expired.
	ErrTimeoutExceeded = model.ErrTimeoutExceeded
	// ErrBackendUnavailable is returned when the backend couldn't be reached.
	ErrBackendUnavailable = model.ErrBackendUnavailable
	// ErrCancelled is returned when the context was cancelled.
	ErrCancelled = model.ErrCancelled
	// ErrNotValid is returned for invalid configuration or options.
	ErrNotValid = model.ErrNotValid
	// ErrNotFound is returned when an execution record doesn't exist.
	ErrNotFound = model.ErrNotFound
	// ErrCommandFailed is returned by scripts with checked commands that failed.
	ErrCommandFailed = script.ErrCommandFailed
)

// PartialResult returns the output produced by a command before it failed, nil
// if the error doesn't carry it.
func PartialResult(err error) *Result {
	return fromExecResult(model.PartialResult(err))
}

// ErrorKind returns the stable name of the error kind, e.g. "timeout_exceeded".
func ErrorKind(err error) string { return model.ErrorKind(err) }
