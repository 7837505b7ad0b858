package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type PlatformCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewPlatformCommand returns the platform command.
func NewPlatformCommand(rootCmd *RootCommand, app *kingpin.Application) *PlatformCommand {
	c := &PlatformCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("platform", "Print the platform of the backend (Linux, Darwin, Windows or Unknown).")
	c.Cmd.Flag("format", "Output format.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c PlatformCommand) Name() string { return c.Cmd.FullCommand() }

func (c PlatformCommand) Run(ctx context.Context) error {
	b, err := c.rootCmd.newBridge(ctx, false, "")
	if err != nil {
		return err
	}
	defer b.close()

	p := b.svc.Platform(ctx)
	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintPlatform(b.backend.Name(), p); err != nil {
		return fmt.Errorf("could not print platform: %w", err)
	}

	return nil
}
