package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/storage/sqlite"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("doctor", "Run preflight checks for the backend and the execution history.")
	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	out := c.rootCmd.Stdout

	var groups []checkGroup

	b, err := c.rootCmd.newBridge(ctx, false, "")
	if err != nil {
		groups = append(groups, checkGroup{name: "backend", results: []model.CheckResult{
			{ID: "backend_setup", Message: err.Error(), Status: model.CheckStatusError},
		}})
	} else {
		defer b.close()
		groups = append(groups, checkGroup{name: b.backend.Name() + " backend", results: backendChecks(ctx, b)})
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: c.rootCmd.DBPath, Logger: logger})
	if err != nil {
		groups = append(groups, checkGroup{name: "history", results: []model.CheckResult{
			{ID: "history_db", Message: err.Error(), Status: model.CheckStatusError},
		}})
	} else {
		defer repo.Close()
		groups = append(groups, checkGroup{name: "history", results: repo.Check(ctx)})
	}

	return printChecks(out, groups)
}

type checkGroup struct {
	name    string
	results []model.CheckResult
}

func backendChecks(ctx context.Context, b *bridgeSetup) []model.CheckResult {
	var results []model.CheckResult
	if checker, ok := b.backend.(executor.Checker); ok {
		results = append(results, checker.Check(ctx)...)
	}

	if model.HasErrors(results) {
		return results
	}

	p := b.svc.Platform(ctx)
	status := model.CheckStatusOK
	if p == model.PlatformUnknown {
		status = model.CheckStatusWarning
	}
	results = append(results, model.CheckResult{ID: "platform", Message: fmt.Sprintf("Platform is %s", p), Status: status})

	env, err := b.svc.Environment(ctx)
	if err != nil {
		results = append(results, model.CheckResult{ID: "environment", Message: fmt.Sprintf("Could not get ambient environment: %s", err), Status: model.CheckStatusError})
	} else {
		results = append(results, model.CheckResult{ID: "environment", Message: fmt.Sprintf("Ambient environment has %d variables", len(env)), Status: model.CheckStatusOK})
	}

	return results
}

func printChecks(out io.Writer, groups []checkGroup) error {
	var all []model.CheckResult
	for _, g := range groups {
		fmt.Fprintf(out, "\nChecking %s...\n", g.name)
		for _, r := range g.results {
			fmt.Fprintf(out, "  %s %-20s %s\n", getStatusIcon(r.Status), r.ID, r.Message)
		}
		all = append(all, g.results...)
	}

	_, warnings, errors := model.CountByStatus(all)

	// Summary.
	fmt.Fprintln(out)
	if errors == 0 && warnings == 0 {
		fmt.Fprintln(out, "All checks passed!")
		return nil
	}

	var summary []string
	if errors > 0 {
		summary = append(summary, fmt.Sprintf("%d error(s)", errors))
	}
	if warnings > 0 {
		summary = append(summary, fmt.Sprintf("%d warning(s)", warnings))
	}
	fmt.Fprintln(out, strings.Join(summary, ", "))

	if errors > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", errors)
	}
	return nil
}

func getStatusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
