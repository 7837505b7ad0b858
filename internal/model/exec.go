package model

import (
	"fmt"
	"io"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// CommandSpec is the immutable description of a single command execution.
type CommandSpec struct {
	// Args is the argv of the command, Args[0] is the executable (argv mode).
	Args []string
	// Shell is a shell command line to run instead of Args (shell mode).
	Shell string
	// WorkingDir is the directory to run the command in, empty means the backend default.
	WorkingDir string
	// Env is the complete environment of the command, it replaces the ambient one.
	Env EnvSnapshot
	// Timeout is the execution deadline (optional, zero means no deadline).
	Timeout time.Duration
	// Stdin is the input stream for the command (optional).
	Stdin io.Reader
	// Stdout streams the command output instead of buffering it (optional).
	Stdout io.Writer
	// Stderr streams the command error output instead of buffering it (optional).
	Stderr io.Writer
}

// Streamed returns true when the output is streamed to the command writers.
func (c CommandSpec) Streamed() bool { return c.Stdout != nil || c.Stderr != nil }

// Command returns a printable representation of the command.
func (c CommandSpec) Command() string {
	if c.Shell != "" {
		return c.Shell
	}
	quoted := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		q, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			q = fmt.Sprintf("%q", a)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " ")
}

// Validate validates the command spec.
func (c CommandSpec) Validate() error {
	switch {
	case len(c.Args) == 0 && c.Shell == "":
		return fmt.Errorf("command is required: %w", ErrNotValid)
	case len(c.Args) > 0 && c.Shell != "":
		return fmt.Errorf("argv and shell command are mutually exclusive: %w", ErrNotValid)
	case len(c.Args) > 0 && c.Args[0] == "":
		return fmt.Errorf("executable name is empty: %w", ErrNotValid)
	case c.Timeout < 0:
		return fmt.Errorf("timeout can't be negative: %w", ErrNotValid)
	}

	for k, v := range c.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") || strings.Contains(v, "\x00") {
			return fmt.Errorf("invalid environment variable %q: %w", k, ErrNotValid)
		}
	}

	return nil
}

// ExecResult contains the result of a command execution.
type ExecResult struct {
	// ExitCode is the exit code of the executed command.
	ExitCode int
	// Stdout is the captured standard output (buffered mode).
	Stdout []byte
	// Stderr is the captured error output (buffered mode).
	Stderr []byte
	// Combined is true when the backend could only supply a merged stream, held in Stdout.
	Combined bool
	// Completed is true when the process ran to its own exit.
	Completed bool
	// Duration is the wall time of the execution.
	Duration time.Duration
}

// Success returns true when the command completed with a zero exit code.
func (e ExecResult) Success() bool { return e.Completed && e.ExitCode == 0 }
