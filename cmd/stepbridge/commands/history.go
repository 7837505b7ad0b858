package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/app/history"
	"github.com/slok/stepbridge/internal/storage/sqlite"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id         string
	step       string
	onlyFailed bool
	limit      int
	format     string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the executed commands, newest first.")
	c.Cmd.Arg("id", "Show a single execution.").StringVar(&c.id)
	c.Cmd.Flag("filter-step", "Only list the executions of a step.").StringVar(&c.step)
	c.Cmd.Flag("failed", "Only list failed executions.").BoolVar(&c.onlyFailed)
	c.Cmd.Flag("limit", "Max number of executions (0 is unlimited).").Short('n').Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	svc, err := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	records, err := svc.Run(ctx, history.Request{
		ID:         c.id,
		StepID:     c.step,
		OnlyFailed: c.onlyFailed,
		Limit:      c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not get history: %w", err)
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if c.id != "" {
		return p.PrintRecord(records[0])
	}
	return p.PrintHistory(records)
}
