package process

import "time"

// State represents the lifecycle stage of a process.
type State string

// Process states. Transitions only move forward.
const (
	StateNotStarted  State = "not_started"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateTerminated  State = "terminated"
)

// Info is a snapshot of a process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitCode  int
	Killed    bool
}
