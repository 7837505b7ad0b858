package printer

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/slok/stepbridge/internal/model"
)

// TablePrinter prints bridge information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintHistory prints execution records in a table format.
func (t *TablePrinter) PrintHistory(records []model.ExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tSTEP\tBACKEND\tCOMMAND\tRESULT\tDURATION\tSTARTED")

	// Print rows.
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			orDash(r.StepID),
			r.Backend,
			Truncate(r.Command, 40),
			resultSummary(r),
			FormatDuration(r.Duration()),
			TimeAgo(r.StartedAt),
		)
	}

	return nil
}

// PrintRecord prints a detailed execution record.
func (t *TablePrinter) PrintRecord(r model.ExecutionRecord) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", r.ID)
	fmt.Fprintf(t.writer, "Step:       %s\n", orDash(r.StepID))
	fmt.Fprintf(t.writer, "Backend:    %s\n", r.Backend)
	fmt.Fprintf(t.writer, "Command:    %s\n", r.Command)
	fmt.Fprintf(t.writer, "WorkingDir: %s\n", orDash(r.WorkingDir))
	fmt.Fprintf(t.writer, "Result:     %s\n", resultSummary(r))
	if r.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", r.Error)
	}
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(r.StartedAt))
	fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(r.Duration()))

	return nil
}

// PrintEnvironment prints the environment sorted by name, as `NAME=value` lines.
func (t *TablePrinter) PrintEnvironment(env model.EnvSnapshot) error {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	slices.Sort(names)

	for _, k := range names {
		fmt.Fprintf(t.writer, "%s=%s\n", k, env[k])
	}

	return nil
}

// PrintPlatform prints the platform name.
func (t *TablePrinter) PrintPlatform(_ string, p model.Platform) error {
	fmt.Fprintln(t.writer, p)
	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func resultSummary(r model.ExecutionRecord) string {
	switch {
	case r.ErrorKind != "":
		return r.ErrorKind
	case !r.Completed:
		return "incomplete"
	default:
		return fmt.Sprintf("exit %d", r.ExitCode)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
