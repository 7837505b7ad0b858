package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
)

// Execution failure kinds. A command exiting with a non-zero code is not one of these,
// it is reported through ExecResult.ExitCode.
var (
	// ErrSpawnFailure is returned when the command could not be started (executable
	// not found, permission denied, bad working directory or the backend rejected it).
	ErrSpawnFailure = errors.New("spawn failure")
	// ErrTimeoutExceeded is returned when the execution deadline elapsed and the process
	// was terminated.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrBackendUnavailable is returned when the execution backend could not be reached
	// or the channel was lost in the middle of an execution.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrCancelled is returned when the owner of the execution cancelled it.
	ErrCancelled = errors.New("cancelled")
)

// ExecError is an execution failure of one of the known kinds.
type ExecError struct {
	// Kind is one of ErrSpawnFailure, ErrTimeoutExceeded, ErrBackendUnavailable or ErrCancelled.
	Kind error
	// Backend is the name of the backend that failed.
	Backend string
	// Err is the underlying cause (optional).
	Err error
	// Partial has the output captured before the failure, if the backend could supply it.
	Partial *ExecResult
}

// NewExecError returns a new ExecError.
func NewExecError(kind error, backend string, err error, partial *ExecResult) *ExecError {
	return &ExecError{Kind: kind, Backend: backend, Err: err, Partial: partial}
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s backend: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s backend: %s: %s", e.Backend, e.Kind, e.Err)
}

// Unwrap returns the kind and the cause so both can be matched with errors.Is.
func (e *ExecError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PartialResult returns the partial result carried by an execution error, if any.
func PartialResult(err error) *ExecResult {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Partial
	}
	return nil
}

// Error kind names, stable across releases, used on logs, history and CLI output.
const (
	ErrorKindNone               = ""
	ErrorKindSpawnFailure       = "spawn_failure"
	ErrorKindTimeoutExceeded    = "timeout_exceeded"
	ErrorKindBackendUnavailable = "backend_unavailable"
	ErrorKindCancelled          = "cancelled"
	ErrorKindInvalid            = "invalid"
	ErrorKindUnknown            = "unknown"
)

// ErrorKind returns the stable kind name of an error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrSpawnFailure):
		return ErrorKindSpawnFailure
	case errors.Is(err, ErrTimeoutExceeded):
		return ErrorKindTimeoutExceeded
	case errors.Is(err, ErrBackendUnavailable):
		return ErrorKindBackendUnavailable
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.Is(err, ErrNotValid):
		return ErrorKindInvalid
	default:
		return ErrorKindUnknown
	}
}
