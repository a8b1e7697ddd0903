package atiende

import (
	"fmt"
	"time"
)

// ErrThreadCreate wraps a failure to create a remote thread. The registry
// never retries creation; callers decide.
type ErrThreadCreate struct {
	Cause error
}

func (e *ErrThreadCreate) Error() string {
	return fmt.Sprintf("create thread: %v", e.Cause)
}

func (e *ErrThreadCreate) Unwrap() error { return e.Cause }

// ErrRunTerminal means the remote run ended in a non-success terminal state.
// Not retryable within one invocation; the escalator may start a fresh run.
type ErrRunTerminal struct {
	Status RunStatus
	Reason string
}

func (e *ErrRunTerminal) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("run ended %s", e.Status)
	}
	return fmt.Sprintf("run ended %s: %s", e.Status, e.Reason)
}

// ErrRunTimeout means the local poll budget elapsed before the run reached a
// terminal state. The run has already been best-effort cancelled remotely.
type ErrRunTimeout struct {
	RunID  string
	Budget time.Duration
}

func (e *ErrRunTimeout) Error() string {
	return fmt.Sprintf("run %s did not finish within %s", e.RunID, e.Budget)
}

// ErrHTTP is a non-2xx response from a remote HTTP API.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
