package execution

import "time"

// Spec describes a single engine invocation. It is substrate-agnostic
// and used by all backends.
type Spec struct {
	// Args is the full engine command including the input file.
	Args []string
	// Workdir is the job workspace; the engine runs with it as its
	// working directory (or has it mounted there).
	Workdir string
	Env     []string
}

// Handle identifies a running execution in a backend. It is owned by
// the backend that created it; the monitor holds it only for polling
// and it is dead once the run is terminal.
type Handle struct {
	ID            string
	BackendHandle any
}

// State is the coarse poll-time state of an execution.
type State int

const (
	StateRunning State = iota
	StateExited
	StateCrashed
)

// PollStatus is a non-blocking snapshot of a running execution.
type PollStatus struct {
	State State
	// ExitCode is valid when State is StateExited.
	ExitCode int
	// Signal names the terminating signal when State is StateCrashed.
	Signal string
}

// Status is the lifecycle state of a monitored job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timedout"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Outcome is the immutable record of a terminal run, produced exactly
// once per job by the monitor.
type Outcome struct {
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Signal   string        `json:"signal,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	// LogTail is the last captured engine output, kept for diagnosis.
	LogTail string `json:"log_tail,omitempty"`
	// Reason is a one-line classification of non-success.
	Reason string `json:"reason,omitempty"`
}
