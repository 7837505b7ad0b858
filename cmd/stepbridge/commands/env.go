package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/model"
)

type EnvCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewEnvCommand returns the env command.
func NewEnvCommand(rootCmd *RootCommand, app *kingpin.Application) *EnvCommand {
	c := &EnvCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("env", "Print the ambient environment commands inherit on the backend.")
	c.Cmd.Flag("format", "Output format.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c EnvCommand) Name() string { return c.Cmd.FullCommand() }

func (c EnvCommand) Run(ctx context.Context) error {
	b, err := c.rootCmd.newBridge(ctx, false, "")
	if err != nil {
		return err
	}
	defer b.close()

	env, err := b.svc.Environment(ctx)
	if err != nil {
		return fmt.Errorf("could not get environment: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintEnvironment(env); err != nil {
		return fmt.Errorf("could not print environment: %w", err)
	}

	return nil
}

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseEnvSpecs parses `KEY=VALUE` specs, a `KEY` spec takes the value from the
// ambient environment.
func parseEnvSpecs(specs []string, ambient model.EnvSnapshot) (model.EnvSnapshot, error) {
	env := make(model.EnvSnapshot, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("environment variable spec cannot be empty")
		}

		key, value, ok := strings.Cut(spec, "=")
		if !envKeyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable key %q", key)
		}

		if !ok {
			value, ok = ambient[key]
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", key)
			}
		}

		env[key] = value
	}

	return env, nil
}
