package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/script"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	scriptPath string
	timeout    time.Duration
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a Starlark step script on the backend.")
	c.Cmd.Arg("script", "Step script file (e.g. build.star).").Required().StringVar(&c.scriptPath)
	c.Cmd.Flag("timeout", "Whole script timeout (0 is no timeout).").DurationVar(&c.timeout)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	src, err := os.ReadFile(c.scriptPath)
	if err != nil {
		return fmt.Errorf("could not read script: %w", err)
	}

	// Scripts are recorded on the history with their name when a step isn't set.
	step := strings.TrimSuffix(filepath.Base(c.scriptPath), filepath.Ext(c.scriptPath))
	b, err := c.rootCmd.newBridge(ctx, true, step)
	if err != nil {
		return err
	}
	defer b.close()

	runner, err := script.NewRunner(script.RunnerConfig{
		Bridge:  b.svc,
		Output:  c.rootCmd.Stdout,
		Timeout: c.timeout,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create script runner: %w", err)
	}

	return runner.Run(ctx, c.scriptPath, src)
}
