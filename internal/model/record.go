package model

import (
	"fmt"
	"time"
)

// ExecutionRecord is the history entry of a bridged command execution.
type ExecutionRecord struct {
	ID         string
	StepID     string
	Backend    string
	Command    string
	WorkingDir string
	ExitCode   int
	Completed  bool
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the execution.
func (e ExecutionRecord) Duration() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }

// ExecutionListOpts are the options to list execution records.
type ExecutionListOpts struct {
	// StepID filters records by step (optional).
	StepID string
	// Limit is the maximum number of records, newest first (optional).
	Limit int
}

// Validate validates the execution record.
func (e ExecutionRecord) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if e.Backend == "" {
		return fmt.Errorf("backend is required: %w", ErrNotValid)
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("started at is required: %w", ErrNotValid)
	}
	if e.FinishedAt.Before(e.StartedAt) {
		return fmt.Errorf("finished at can't be before started at: %w", ErrNotValid)
	}
	return nil
}
