package commands

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/bridge"
	"github.com/slok/stepbridge/internal/model"
)

type ExecCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	command    []string
	workingDir string
	envSpecs   []string
	clearEnv   bool
	shell      bool
	stdin      bool
	timeout    time.Duration
}

// NewExecCommand returns the exec command.
func NewExecCommand(rootCmd *RootCommand, app *kingpin.Application) *ExecCommand {
	c := &ExecCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("exec", "Execute a command on the backend, exiting with its exit code.")
	c.Cmd.Arg("command", "Command to execute (use -- before command).").Required().StringsVar(&c.command)
	c.Cmd.Flag("workdir", "Working directory for command execution.").Short('w').StringVar(&c.workingDir)
	c.Cmd.Flag("env", "Environment variables (KEY=VALUE or KEY from the ambient environment), added to the ambient environment. Can be repeated.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("clear-env", "Don't inherit the ambient environment.").BoolVar(&c.clearEnv)
	c.Cmd.Flag("shell", "Run the command as a shell command line.").BoolVar(&c.shell)
	c.Cmd.Flag("stdin", "Attach the standard input to the command.").Short('i').BoolVar(&c.stdin)
	c.Cmd.Flag("timeout", "Command timeout (0 uses the backend default timeout).").DurationVar(&c.timeout)

	return c
}

func (c ExecCommand) Name() string { return c.Cmd.FullCommand() }

func (c ExecCommand) Run(ctx context.Context) error {
	b, err := c.rootCmd.newBridge(ctx, true, "")
	if err != nil {
		return err
	}
	defer b.close()

	req := bridge.RunRequest{
		WorkingDir: c.workingDir,
		Timeout:    c.timeout,
		Stdout:     c.rootCmd.Stdout,
		Stderr:     c.rootCmd.Stderr,
	}
	if c.shell {
		req.Shell = strings.Join(c.command, " ")
	} else {
		req.Args = c.command
	}
	if c.stdin {
		req.Stdin = c.rootCmd.Stdin
	}

	if len(c.envSpecs) > 0 || c.clearEnv {
		env, err := c.environment(ctx, b.svc)
		if err != nil {
			return err
		}
		req.Env = model.ReplaceEnv(env)
	}

	res, err := b.svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("could not execute command: %w", err)
	}

	if res.ExitCode != 0 {
		return ExitCodeError{Code: res.ExitCode}
	}

	return nil
}

func (c ExecCommand) environment(ctx context.Context, svc *bridge.Service) (model.EnvSnapshot, error) {
	ambient, err := svc.Environment(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get ambient environment: %w", err)
	}

	vars, err := parseEnvSpecs(c.envSpecs, ambient)
	if err != nil {
		return nil, fmt.Errorf("invalid --env value: %w: %w", err, model.ErrNotValid)
	}

	env := model.EnvSnapshot{}
	if !c.clearEnv {
		env = ambient.Copy()
	}
	maps.Copy(env, vars)

	return env, nil
}
