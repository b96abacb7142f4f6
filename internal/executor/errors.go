package executor

import (
	"fmt"
	"time"
)

// SpawnError means the OS could not create the subprocess at all.
type SpawnError struct {
	Op  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: failed to spawn: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// CommandError means the subprocess ran and exited nonzero. Captured output
// is carried (bounded) so the caller can diagnose without reading logs.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
	Stdout   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exited with code %d", e.Op, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// TimeoutError means the wall-clock budget elapsed; the underlying process
// was terminated before this error surfaced.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
}

// CanceledError means a caller explicitly canceled the operation via its
// handle before the timeout elapsed.
type CanceledError struct {
	Op string
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("%s: canceled", e.Op)
}

// tail bounds captured output carried inside error values.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
