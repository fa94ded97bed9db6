// Package local runs the engine binary directly on the host with the
// job workspace as its working directory.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"spindrive/core/execution"
)

type Options struct {
	// Engine is the solver command probed by Available; the actual
	// invocation arrives fully assembled in the execution spec.
	Engine []string
	// Stdout and Stderr additionally stream the engine output; nil
	// discards the stream (captured logs are always kept).
	Stdout io.Writer
	Stderr io.Writer
}

// Backend launches one engine process per handle; all run state lives
// on the handle so independent jobs can share the backend instance.
type Backend struct {
	opts Options
}

func New(opts Options) *Backend {
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return "local" }

func (b *Backend) Available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.opts.Engine) == 0 {
		return fmt.Errorf("engine command not configured")
	}
	if _, err := exec.LookPath(b.opts.Engine[0]); err != nil {
		return &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("engine binary %q not found: %w", b.opts.Engine[0], err)}
	}
	return nil
}

type procHandle struct {
	cmd  *exec.Cmd
	logs lockedBuffer

	done chan struct{}

	mu     sync.Mutex
	status execution.PollStatus
}

func (b *Backend) Start(ctx context.Context, spec execution.Spec) (execution.Handle, error) {
	if len(spec.Args) == 0 {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("no command provided")}
	}

	h := &procHandle{done: make(chan struct{})}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Workdir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	stdout := b.opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := b.opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	cmd.Stdout = io.MultiWriter(stdout, &h.logs)
	cmd.Stderr = io.MultiWriter(stderr, &h.logs)

	if err := cmd.Start(); err != nil {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(), Err: err}
	}
	h.cmd = cmd

	// Reap in the background so Poll stays non-blocking.
	go func() {
		waitErr := cmd.Wait()
		h.mu.Lock()
		h.status = statusForWait(waitErr)
		h.mu.Unlock()
		close(h.done)
	}()

	return execution.Handle{
		ID:            fmt.Sprintf("pid-%d", cmd.Process.Pid),
		BackendHandle: h,
	}, nil
}

func (b *Backend) Poll(handle execution.Handle) (execution.PollStatus, error) {
	h, ok := handle.BackendHandle.(*procHandle)
	if !ok {
		return execution.PollStatus{}, fmt.Errorf("invalid handle")
	}
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.status, nil
	default:
		return execution.PollStatus{State: execution.StateRunning}, nil
	}
}

func (b *Backend) Kill(handle execution.Handle) error {
	h, ok := handle.BackendHandle.(*procHandle)
	if !ok {
		return fmt.Errorf("invalid handle")
	}
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (b *Backend) Logs(handle execution.Handle) string {
	h, ok := handle.BackendHandle.(*procHandle)
	if !ok {
		return ""
	}
	return h.logs.String()
}

func (b *Backend) Cleanup(handle execution.Handle) error {
	h, ok := handle.BackendHandle.(*procHandle)
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	default:
		return b.Kill(handle)
	}
}

func statusForWait(waitErr error) execution.PollStatus {
	if waitErr == nil {
		return execution.PollStatus{State: execution.StateExited}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return execution.PollStatus{
					State:  execution.StateCrashed,
					Signal: status.Signal().String(),
				}
			}
			return execution.PollStatus{
				State:    execution.StateExited,
				ExitCode: status.ExitStatus(),
			}
		}
		return execution.PollStatus{State: execution.StateExited, ExitCode: exitErr.ExitCode()}
	}
	return execution.PollStatus{State: execution.StateExited, ExitCode: 1}
}

// lockedBuffer serialises writes from the process pipes against reads
// from Logs.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ execution.Backend = (*Backend)(nil)
