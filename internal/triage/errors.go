package triage

import "fmt"

// ErrorKind classifies run-level failures.
type ErrorKind string

const (
	KindInputInvalid  ErrorKind = "input_invalid"
	KindSetupFailure  ErrorKind = "setup_failure"
	KindSpawnFailure  ErrorKind = "spawn_failure"
	KindWorkerCrashed ErrorKind = "worker_crashed"
	KindCancelled     ErrorKind = "cancelled"
)

// RunError is a run-terminating failure. Message is safe to show to observers.
type RunError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error formats run failures for logs.
func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func runError(kind ErrorKind, message string, err error) *RunError {
	return &RunError{Kind: kind, Message: message, Err: err}
}
