package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/stepbridge/internal/model"
)

// JSONPrinter prints bridge information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// recordOutput represents an execution record output.
type recordOutput struct {
	ID         string    `json:"id"`
	StepID     string    `json:"step_id,omitempty"`
	Backend    string    `json:"backend"`
	Command    string    `json:"command"`
	WorkingDir string    `json:"working_dir,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Completed  bool      `json:"completed"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

// platformOutput represents the platform output.
type platformOutput struct {
	Backend  string `json:"backend"`
	Platform string `json:"platform"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

func newRecordOutput(r model.ExecutionRecord) recordOutput {
	return recordOutput{
		ID:         r.ID,
		StepID:     r.StepID,
		Backend:    r.Backend,
		Command:    r.Command,
		WorkingDir: r.WorkingDir,
		ExitCode:   r.ExitCode,
		Completed:  r.Completed,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		DurationMS: r.Duration().Milliseconds(),
	}
}

// PrintHistory prints execution records in JSON format.
func (j *JSONPrinter) PrintHistory(records []model.ExecutionRecord) error {
	items := make([]recordOutput, len(records))
	for i, r := range records {
		items[i] = newRecordOutput(r)
	}
	return j.encode(items)
}

// PrintRecord prints an execution record in JSON format.
func (j *JSONPrinter) PrintRecord(r model.ExecutionRecord) error {
	return j.encode(newRecordOutput(r))
}

// PrintEnvironment prints the environment as a JSON object.
func (j *JSONPrinter) PrintEnvironment(env model.EnvSnapshot) error {
	if env == nil {
		env = model.EnvSnapshot{}
	}
	return j.encode(env)
}

// PrintPlatform prints the platform in JSON format.
func (j *JSONPrinter) PrintPlatform(backend string, p model.Platform) error {
	return j.encode(platformOutput{Backend: backend, Platform: p.String()})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
