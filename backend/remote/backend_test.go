package remote

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spindrive/core/execution"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// fakeSubmit writes a submission command that runs the job script
// immediately in the background, the way a permissive scheduler would,
// and prints a scheduler-style acknowledgement.
func fakeSubmit(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "submit")
	script := "#!/bin/sh\nsh \"$1\" >/dev/null 2>&1 &\necho \"Submitted batch job 4242\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return []string{path}
}

func pollUntilDone(t *testing.T, b *Backend, h execution.Handle) execution.PollStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := b.Poll(h)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if status.State != execution.StateRunning {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not complete in time")
	return execution.PollStatus{}
}

func TestSubmitAndComplete(t *testing.T) {
	requireShell(t)
	b := New(Options{Submit: fakeSubmit(t)})
	dir := t.TempDir()

	h, err := b.Start(context.Background(), execution.Spec{
		Args:    []string{"sh", "-c", "echo engine output"},
		Workdir: dir,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.ID != "remote-4242" {
		t.Fatalf("handle id %q, want scheduler id from submit output", h.ID)
	}

	status := pollUntilDone(t, b, h)
	if status.State != execution.StateExited || status.ExitCode != 0 {
		t.Fatalf("status %+v", status)
	}
	if logs := b.Logs(h); !strings.Contains(logs, "engine output") {
		t.Fatalf("logs %q", logs)
	}
	if _, err := os.Stat(filepath.Join(dir, "job.sh")); err != nil {
		t.Fatalf("job script not written: %v", err)
	}
}

func TestNonZeroExitViaMarker(t *testing.T) {
	requireShell(t)
	b := New(Options{Submit: fakeSubmit(t)})
	h, err := b.Start(context.Background(), execution.Spec{
		Args:    []string{"sh", "-c", "exit 7"},
		Workdir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := pollUntilDone(t, b, h)
	if status.ExitCode != 7 {
		t.Fatalf("exit code %d, want 7", status.ExitCode)
	}
}

func TestPollBeforeMarkerIsRunning(t *testing.T) {
	b := New(Options{})
	h := execution.Handle{BackendHandle: &remoteHandle{workdir: t.TempDir()}}
	status, err := b.Poll(h)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status.State != execution.StateRunning {
		t.Fatalf("state %v before marker exists", status.State)
	}
}

func TestPollMalformedMarker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "exit.code"), []byte("whoops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := New(Options{})
	_, err := b.Poll(execution.Handle{BackendHandle: &remoteHandle{workdir: dir}})
	if err == nil || !strings.Contains(err.Error(), "whoops") {
		t.Fatalf("error %v, want malformed marker naming the content", err)
	}
}

func TestScriptContent(t *testing.T) {
	b := New(Options{Header: "#SBATCH --ntasks=1"})
	script := b.script(execution.Spec{
		Args:    []string{"oommf", "boxsi", "+fg", "stripe.mif", "-exitondone", "1"},
		Workdir: "/scratch/stripe/drive-0",
		Env:     []string{"OOMMF_THREADS=4"},
	})
	for _, want := range []string{
		"#!/bin/sh",
		"#SBATCH --ntasks=1",
		`cd "/scratch/stripe/drive-0"`,
		"export OOMMF_THREADS=4",
		"oommf boxsi +fg stripe.mif -exitondone 1 > engine.log 2>&1",
		"echo $status > exit.code",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}
	if !strings.HasPrefix(script, "#!/bin/sh\n#SBATCH") {
		t.Fatalf("header not directly under shebang:\n%s", script)
	}
}

func TestKillTolerantOfFinishedJob(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	// The marker exists, so a failing cancel command means the job
	// already finished and Kill must not report an error.
	if err := os.WriteFile(filepath.Join(dir, "exit.code"), []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := New(Options{Cancel: []string{"sh", "-c", "exit 1"}})
	h := execution.Handle{BackendHandle: &remoteHandle{schedulerID: "4242", workdir: dir}}
	if err := b.Kill(h); err != nil {
		t.Fatalf("Kill after completion: %v", err)
	}
}

func TestAvailableMissingSubmitCommand(t *testing.T) {
	b := New(Options{Submit: []string{"no-such-submit-command"}})
	err := b.Available(context.Background())
	var launchErr *execution.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("error %v, want LaunchError", err)
	}
}

func TestSchedulerID(t *testing.T) {
	cases := []struct {
		out  string
		want string
	}{
		{"Submitted batch job 12345\n", "12345"},
		{"12345\n", "12345"},
		{"queued as job 7 on partition gpu-2", "7"},
		{"no id here", ""},
	}
	for _, tc := range cases {
		if got := schedulerID(tc.out); got != tc.want {
			t.Fatalf("schedulerID(%q) = %q, want %q", tc.out, got, tc.want)
		}
	}
}
