package execution

import "context"

// Backend is implemented by all execution adapters. It is intentionally
// minimal and substrate-agnostic so backends can be swapped without
// touching orchestration: a local binary, a container daemon, and a
// batch scheduler all fit the same lifecycle.
type Backend interface {
	Name() string

	// Available probes the substrate before any run is attempted. A
	// container backend reports an unreachable daemon here as a
	// DaemonUnavailableError, never as a launch failure.
	Available(ctx context.Context) error

	// Start launches the engine and returns once it is running, not
	// once it finishes.
	Start(ctx context.Context, spec Spec) (Handle, error)

	// Poll reports the current state without blocking. Safe to call
	// repeatedly, including after the run became terminal.
	Poll(h Handle) (PollStatus, error)

	// Kill terminates the run. Idempotent; a target that already
	// exited is not an error.
	Kill(h Handle) error

	// Logs returns the best-effort captured engine output so far.
	Logs(h Handle) string

	// Cleanup releases backend resources tied to the handle.
	Cleanup(h Handle) error
}
