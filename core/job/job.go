// Package job manages the identity and workspace of one engine
// invocation. A workspace belongs to exactly one job for its whole
// lifetime; two jobs never share a directory.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spindrive/core/execution"
)

// Job identifies one simulation invocation.
type Job struct {
	// ID is unique per invocation and survives workspace reuse.
	ID string
	// System is the simulated system's name; it prefixes every file
	// the engine writes.
	System string
	// Drive is the per-system drive number encoded in the workspace
	// path.
	Drive int
	// Workspace is the directory exclusively owned by this job.
	Workspace string
	// InputPath is the MIF file inside the workspace.
	InputPath string
	// ExpectedOutputs are globs (relative to the workspace) that must
	// all match non-empty files for the run to count as a success.
	ExpectedOutputs []string

	Status execution.Status
}

// New allocates the next drive workspace for systemName under baseDir,
// following the engine convention <base>/<system>/drive-N. Earlier
// drives are kept; N is one past the highest existing drive. Creation
// is the arbiter: Mkdir fails on an existing directory, so two
// allocations racing for the same number cannot end up sharing one
// workspace; the loser moves on to the next free number.
func New(baseDir, systemName string) (*Job, error) {
	systemDir := filepath.Join(baseDir, systemName)
	if err := os.MkdirAll(systemDir, 0o755); err != nil {
		return nil, fmt.Errorf("create system dir: %w", err)
	}
	drive, err := nextDrive(systemDir)
	if err != nil {
		return nil, err
	}
	var workspace string
	for {
		workspace = filepath.Join(systemDir, fmt.Sprintf("drive-%d", drive))
		err := os.Mkdir(workspace, 0o755)
		if err == nil {
			break
		}
		if errors.Is(err, fs.ErrExist) {
			drive++
			continue
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Job{
		ID:        uuid.NewString(),
		System:    systemName,
		Drive:     drive,
		Workspace: workspace,
		ExpectedOutputs: []string{
			systemName + ".odt",
			systemName + "*.omf",
		},
		Status: execution.StatusPending,
	}, nil
}

func nextDrive(systemDir string) (int, error) {
	entries, err := os.ReadDir(systemDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan %s: %w", systemDir, err)
	}
	next := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(entry.Name(), "drive-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Info is the drive metadata written next to the input file so a
// workspace remains self-describing after the fact.
type Info struct {
	JobID  string         `json:"job_id"`
	Drive  int            `json:"drive_number"`
	Date   string         `json:"date"`
	Time   string         `json:"time"`
	Driver string         `json:"driver"`
	Args   map[string]any `json:"args,omitempty"`
}

// WriteInfo records drive metadata as info.json inside the workspace.
func (j *Job) WriteInfo(driverKind string, args map[string]any) error {
	now := time.Now()
	info := Info{
		JobID:  j.ID,
		Drive:  j.Drive,
		Date:   now.Format("2006-01-02"),
		Time:   now.Format("15:04:05"),
		Driver: driverKind,
		Args:   args,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.Workspace, "info.json"), data, 0o644); err != nil {
		return fmt.Errorf("write info.json: %w", err)
	}
	return nil
}

// Remove deletes the workspace and everything the engine left in it.
func (j *Job) Remove() error {
	if j.Workspace == "" {
		return nil
	}
	return os.RemoveAll(j.Workspace)
}
