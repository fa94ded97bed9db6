package runner

import (
	"spindrive/core/execution"
	"spindrive/odt"
	"spindrive/ovf"
)

// Result is the assembled outcome of one successful drive. It is
// immutable once returned; the table and snapshots reference only this
// job's workspace output.
type Result struct {
	JobID  string
	System string
	Driver string
	Drive  int
	// Workspace is set only when the workspace was kept.
	Workspace string

	// Table is the engine's tabular output, one record per saved
	// stage/iteration, in emission order.
	Table *odt.Table
	// Snapshots are the decoded field dumps, in emission order.
	Snapshots []*ovf.Field

	Outcome execution.Outcome
}

// Final returns the last field snapshot: the relaxed or final
// magnetisation state of the drive.
func (r *Result) Final() *ovf.Field {
	if len(r.Snapshots) == 0 {
		return nil
	}
	return r.Snapshots[len(r.Snapshots)-1]
}
