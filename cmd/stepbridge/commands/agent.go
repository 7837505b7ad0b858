package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/agent"
	"github.com/slok/stepbridge/internal/executor/local"
)

type AgentCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listen     string
	workingDir string
}

// NewAgentCommand returns the agent command.
func NewAgentCommand(rootCmd *RootCommand, app *kingpin.Application) *AgentCommand {
	c := &AgentCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("agent", "Serve the commands of remote bridges on this host.")
	c.Cmd.Flag("listen", "Address the agent listens on.").Default("127.0.0.1:7433").StringVar(&c.listen)
	c.Cmd.Flag("workdir", "Default working directory of the commands.").Short('w').StringVar(&c.workingDir)

	return c
}

func (c AgentCommand) Name() string { return c.Cmd.FullCommand() }

func (c AgentCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	backend, err := local.NewBackend(local.BackendConfig{
		DefaultWorkingDir: c.workingDir,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("could not create local backend: %w", err)
	}

	srv, err := agent.NewServer(agent.ServerConfig{
		Backend: backend,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create agent server: %w", err)
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", c.listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", c.listen, err)
	}

	return srv.Serve(ctx, l)
}
