package devserver

import "fmt"

// StopFailedError means termination could not be confirmed after graceful
// and forceful attempts. It is never swallowed: a zombie dev process holding
// ports and file locks is worse than a reported failure.
type StopFailedError struct {
	PID int
}

func (e *StopFailedError) Error() string {
	return fmt.Sprintf("dev process %d did not terminate after SIGTERM and SIGKILL; manual intervention required", e.PID)
}
