package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// logTailLimit bounds the captured output kept in an Outcome.
const logTailLimit = 4096

// Monitor drives a started handle to a terminal state by repeated
// polling with a bounded sleep. Timeouts are enforced here, not in the
// backends, so every substrate gets the same ceiling semantics.
type Monitor struct {
	// PollInterval is the sleep between polls.
	PollInterval time.Duration
	// Timeout is the wall-clock ceiling; zero disables it.
	Timeout time.Duration
}

// Wait blocks until the execution behind h is terminal and returns the
// single Outcome for it.
//
// Succeeded requires exit code 0 and every expected output glob to
// match at least one non-empty file under workdir: the engine is known
// to occasionally exit cleanly without writing results, and that must
// surface as a failure, not as an empty success. On timeout,
// cancellation or a poll failure the handle is killed before returning
// so no engine process outlives the job.
func (m Monitor) Wait(ctx context.Context, b Backend, h Handle, workdir string, expected []string) (Outcome, error) {
	start := time.Now()
	var deadline time.Time
	if m.Timeout > 0 {
		deadline = start.Add(m.Timeout)
	}
	interval := m.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	for {
		status, err := b.Poll(h)
		if err != nil {
			// The run may still be live behind the unpollable handle;
			// kill it so nothing outlives the failed job.
			_ = b.Kill(h)
			return m.outcome(b, h, start, Outcome{
				Status:   StatusFailed,
				ExitCode: -1,
				Reason:   fmt.Sprintf("poll: %v", err),
			}), nil
		}

		switch status.State {
		case StateExited:
			if status.ExitCode != 0 {
				return m.outcome(b, h, start, Outcome{
					Status:   StatusFailed,
					ExitCode: status.ExitCode,
					Reason:   fmt.Sprintf("engine exited with code %d", status.ExitCode),
				}), nil
			}
			if missing := missingOutputs(workdir, expected); missing != "" {
				return m.outcome(b, h, start, Outcome{
					Status:   StatusFailed,
					ExitCode: 0,
					Reason:   fmt.Sprintf("engine exited cleanly but output %q is missing or empty", missing),
				}), nil
			}
			return m.outcome(b, h, start, Outcome{Status: StatusSucceeded}), nil

		case StateCrashed:
			return m.outcome(b, h, start, Outcome{
				Status:   StatusFailed,
				ExitCode: -1,
				Signal:   status.Signal,
				Reason:   fmt.Sprintf("engine crashed: signal %s", status.Signal),
			}), nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			_ = b.Kill(h)
			return m.outcome(b, h, start, Outcome{
				Status:   StatusTimedOut,
				ExitCode: -1,
				Reason:   fmt.Sprintf("exceeded wall-clock ceiling %s", m.Timeout),
			}), nil
		}

		sleep := interval
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < sleep {
				sleep = remaining
			}
		}
		select {
		case <-ctx.Done():
			_ = b.Kill(h)
			out := m.outcome(b, h, start, Outcome{
				Status:   StatusFailed,
				ExitCode: -1,
				Reason:   "cancelled",
			})
			return out, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (m Monitor) outcome(b Backend, h Handle, start time.Time, out Outcome) Outcome {
	out.Elapsed = time.Since(start)
	out.LogTail = tail(b.Logs(h), logTailLimit)
	return out
}

// missingOutputs returns the first expected glob with no non-empty
// match, or "" when all are satisfied.
func missingOutputs(workdir string, expected []string) string {
	for _, pattern := range expected {
		matches, err := filepath.Glob(filepath.Join(workdir, pattern))
		if err != nil {
			return pattern
		}
		found := false
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && info.Size() > 0 {
				found = true
				break
			}
		}
		if !found {
			return pattern
		}
	}
	return ""
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
