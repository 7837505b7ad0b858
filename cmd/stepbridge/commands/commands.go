package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// ExitCodeError makes the application exit with the code of a bridged command.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string { return fmt.Sprintf("command exited with code %d", e.Code) }

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string
	NoHistory  bool

	// Backend binding flags, ignored when a config file is used.
	ConfigFile     string
	Backend        string
	StepID         string
	DefaultTimeout time.Duration
	Local          model.LocalBinding
	Docker         model.DockerBinding
	Kube           model.KubeBinding
	SSH            model.SSHBinding
	AgentAddress   string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".stepbridge", "history.db")
	app.Flag("db-path", "Path to the SQLite execution history database file.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("no-history", "Don't record the executions on the history.").BoolVar(&c.NoHistory)

	app.Flag("config", "Backend binding YAML file, replaces the backend flags.").Short('c').StringVar(&c.ConfigFile)
	app.Flag("backend", "Backend where the commands are executed.").Default(string(model.BackendTypeLocal)).EnumVar(&c.Backend,
		string(model.BackendTypeLocal),
		string(model.BackendTypeDocker),
		string(model.BackendTypeKube),
		string(model.BackendTypeSSH),
		string(model.BackendTypeAgent),
	)
	app.Flag("step", "Step ID recorded on the execution history.").StringVar(&c.StepID)
	app.Flag("default-timeout", "Timeout of the commands that don't set one (0 is no timeout).").DurationVar(&c.DefaultTimeout)

	app.Flag("local-workdir", "Local backend default working directory.").StringVar(&c.Local.DefaultWorkingDir)
	app.Flag("local-create-workdir", "Create missing working directories on the local backend.").BoolVar(&c.Local.CreateWorkingDir)
	app.Flag("docker-container", "Docker backend container name or ID.").StringVar(&c.Docker.Container)
	app.Flag("kubeconfig", "Kubernetes backend kubeconfig path.").StringVar(&c.Kube.Kubeconfig)
	app.Flag("kube-namespace", "Kubernetes backend pod namespace.").StringVar(&c.Kube.Namespace)
	app.Flag("kube-pod", "Kubernetes backend pod name.").StringVar(&c.Kube.Pod)
	app.Flag("kube-container", "Kubernetes backend pod container.").StringVar(&c.Kube.Container)
	app.Flag("ssh-host", "SSH backend host.").StringVar(&c.SSH.Host)
	app.Flag("ssh-port", "SSH backend port.").Default("22").IntVar(&c.SSH.Port)
	app.Flag("ssh-user", "SSH backend user.").StringVar(&c.SSH.User)
	app.Flag("ssh-key", "SSH backend private key file.").StringVar(&c.SSH.PrivateKeyFile)
	app.Flag("ssh-known-hosts", "SSH backend known hosts file (any host key is accepted if missing).").StringVar(&c.SSH.KnownHostsFile)
	app.Flag("ssh-create-workdir", "Create missing working directories on the SSH backend.").BoolVar(&c.SSH.CreateWorkingDir)
	app.Flag("agent-address", "Agent backend address, tunneled through SSH when the SSH host is set.").StringVar(&c.AgentAddress)

	return c
}

func newPrinter(format string, w io.Writer) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(w)
	}
	return printer.NewTablePrinter(w)
}
