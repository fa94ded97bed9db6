package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"spindrive/core/execution"
	"spindrive/core/version"
)

// outcomeRecord is the on-disk form of a terminal outcome, written
// into kept workspaces so a run stays diagnosable after the process
// exits.
type outcomeRecord struct {
	Version string            `json:"version"`
	Outcome execution.Outcome `json:"outcome"`
}

func writeOutcome(workspace string, outcome execution.Outcome) error {
	data, err := json.MarshalIndent(outcomeRecord{
		Version: version.OutcomeVersion,
		Outcome: outcome,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "outcome.json"), data, 0o644); err != nil {
		return fmt.Errorf("write outcome.json: %w", err)
	}
	return nil
}
