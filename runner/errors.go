package runner

import (
	"fmt"

	"spindrive/core/execution"
)

// SimulationError means the engine was launched correctly but the run
// did not succeed: non-zero exit, crash, timeout, or a clean exit with
// missing outputs. It carries everything needed to reproduce the run
// by hand; partial output is never parsed.
type SimulationError struct {
	JobID     string
	Workspace string
	Outcome   execution.Outcome
}

func (e *SimulationError) Error() string {
	msg := fmt.Sprintf("simulation %s %s: %s", e.JobID, e.Outcome.Status, e.Outcome.Reason)
	if e.Outcome.LogTail != "" {
		msg += "\nengine output tail:\n" + e.Outcome.LogTail
	}
	return msg
}
