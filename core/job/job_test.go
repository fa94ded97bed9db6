package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewNumbersDrivesSequentially(t *testing.T) {
	base := t.TempDir()
	for want := 0; want < 3; want++ {
		j, err := New(base, "stripe")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if j.Drive != want {
			t.Fatalf("drive %d, want %d", j.Drive, want)
		}
		wantDir := filepath.Join(base, "stripe", fmt.Sprintf("drive-%d", want))
		if j.Workspace != wantDir {
			t.Fatalf("workspace %s, want %s", j.Workspace, wantDir)
		}
		if fi, err := os.Stat(j.Workspace); err != nil || !fi.IsDir() {
			t.Fatalf("workspace not created: %v", err)
		}
	}
}

func TestNewSkipsGapsAndForeignEntries(t *testing.T) {
	base := t.TempDir()
	systemDir := filepath.Join(base, "stripe")
	for _, name := range []string{"drive-0", "drive-7", "drive-x", "notes"} {
		if err := os.MkdirAll(filepath.Join(systemDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// A stray file must not be counted either.
	if err := os.WriteFile(filepath.Join(systemDir, "drive-9"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := New(base, "stripe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if j.Drive != 8 {
		t.Fatalf("drive %d, want 8 (one past highest existing)", j.Drive)
	}
}

func TestNewDistinctSystemsDoNotShareNumbering(t *testing.T) {
	base := t.TempDir()
	if _, err := New(base, "stripe"); err != nil {
		t.Fatal(err)
	}
	j, err := New(base, "disk")
	if err != nil {
		t.Fatal(err)
	}
	if j.Drive != 0 {
		t.Fatalf("drive %d for fresh system, want 0", j.Drive)
	}
}

func TestNewConcurrentAllocationsAreExclusive(t *testing.T) {
	base := t.TempDir()
	const workers = 8
	const perWorker = 25

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				j, err := New(base, "stripe")
				if err != nil {
					t.Errorf("New: %v", err)
					return
				}
				mu.Lock()
				if seen[j.Workspace] {
					t.Errorf("workspace %s handed to two jobs", j.Workspace)
				}
				seen[j.Workspace] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("%d distinct workspaces, want %d", len(seen), workers*perWorker)
	}
}

func TestNewRetriesPastOccupiedNumber(t *testing.T) {
	base := t.TempDir()
	a, err := New(base, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(base, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	if a.Workspace == b.Workspace {
		t.Fatalf("both jobs own %s", a.Workspace)
	}
	if b.Drive != a.Drive+1 {
		t.Fatalf("drives %d, %d", a.Drive, b.Drive)
	}
}

func TestJobIdentityAndOutputs(t *testing.T) {
	base := t.TempDir()
	a, err := New(base, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(base, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("two jobs share an ID")
	}
	if a.Workspace == b.Workspace {
		t.Fatal("two jobs share a workspace")
	}
	want := []string{"stripe.odt", "stripe*.omf"}
	for i, glob := range want {
		if a.ExpectedOutputs[i] != glob {
			t.Fatalf("expected outputs %v, want %v", a.ExpectedOutputs, want)
		}
	}
}

func TestWriteInfo(t *testing.T) {
	j, err := New(t.TempDir(), "stripe")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.WriteInfo("time", map[string]any{"t": 1e-9, "n": 10}); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(j.Workspace, "info.json"))
	if err != nil {
		t.Fatal(err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("info.json is not valid JSON: %v", err)
	}
	if info.JobID != j.ID {
		t.Fatalf("job_id %s, want %s", info.JobID, j.ID)
	}
	if info.Drive != j.Drive {
		t.Fatalf("drive_number %d, want %d", info.Drive, j.Drive)
	}
	if info.Driver != "time" {
		t.Fatalf("driver %q", info.Driver)
	}
	if info.Date == "" || info.Time == "" {
		t.Fatal("date/time not recorded")
	}
}

func TestRemove(t *testing.T) {
	j, err := New(t.TempDir(), "stripe")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(j.Workspace, "stripe.odt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := j.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(j.Workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after Remove: %v", err)
	}
	// Removing an empty job is a no-op.
	if err := (&Job{}).Remove(); err != nil {
		t.Fatalf("empty Remove: %v", err)
	}
}
