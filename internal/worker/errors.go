package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteFailure is returned when a frame cannot be written to the worker.
	ErrWriteFailure = errors.New("worker write failed")
	// ErrReadyTimeout is returned when the readiness token does not arrive in time.
	ErrReadyTimeout = errors.New("worker readiness timed out")
)

// SpawnError reports a worker executable that could not be started.
type SpawnError struct {
	Path string
	Err  error
}

// Error formats spawn failures for logs and observers.
func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("start worker %s: %v", e.Path, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CrashError reports a worker that exited while it still owed output.
type CrashError struct {
	ExitCode int
	Signal   string
	Stderr   string
}

// Error formats the exit status.
func (e *CrashError) Error() string {
	if e == nil {
		return ""
	}
	if e.Signal != "" {
		return fmt.Sprintf("worker terminated by signal %s", e.Signal)
	}
	return fmt.Sprintf("worker exited unexpectedly (exit code %d)", e.ExitCode)
}
