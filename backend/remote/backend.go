// Package remote submits the engine run to a batch scheduler
// (sbatch-style): it writes a job script into the workspace, hands it
// to the submission command, and watches for a completion marker the
// script writes when the engine exits. The scheduler owns placement;
// this backend only needs submit, poll, and cancel.
package remote

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"spindrive/core/execution"
)

const (
	markerFile = "exit.code"
	logFile    = "engine.log"
)

type Options struct {
	// Submit is the scheduler submission command; the script path is
	// appended.
	Submit []string
	// Cancel is the cancellation command; the scheduler job id is
	// appended. Optional.
	Cancel []string
	// Header is prepended verbatim to the job script, typically the
	// scheduler's resource directives and environment activation.
	Header string
	// ScriptName is the job script filename inside the workspace.
	ScriptName string
}

type Backend struct {
	opts Options
}

func New(opts Options) *Backend {
	if opts.ScriptName == "" {
		opts.ScriptName = "job.sh"
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return "remote" }

func (b *Backend) Available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.opts.Submit) == 0 {
		return fmt.Errorf("submit command not configured")
	}
	if _, err := exec.LookPath(b.opts.Submit[0]); err != nil {
		return &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("submit command %q not found: %w", b.opts.Submit[0], err)}
	}
	return nil
}

type remoteHandle struct {
	schedulerID string
	workdir     string
}

func (b *Backend) Start(ctx context.Context, spec execution.Spec) (execution.Handle, error) {
	if len(spec.Args) == 0 {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("no command provided")}
	}

	scriptPath := filepath.Join(spec.Workdir, b.opts.ScriptName)
	if err := os.WriteFile(scriptPath, []byte(b.script(spec)), 0o755); err != nil {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("write job script: %w", err)}
	}

	args := append(append([]string{}, b.opts.Submit...), scriptPath)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = spec.Workdir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return execution.Handle{}, &execution.LaunchError{Backend: b.Name(),
			Err: fmt.Errorf("submit: %w: %s", err, strings.TrimSpace(string(out)))}
	}

	id := schedulerID(string(out))
	return execution.Handle{
		ID:            "remote-" + id,
		BackendHandle: &remoteHandle{schedulerID: id, workdir: spec.Workdir},
	}, nil
}

// script wraps the engine command so the exit code lands in a marker
// file the poll loop can see; the scheduler gives us no portable way
// to ask.
func (b *Backend) script(spec execution.Spec) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	if b.opts.Header != "" {
		sb.WriteString(b.opts.Header)
		if !strings.HasSuffix(b.opts.Header, "\n") {
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "cd %q\n", spec.Workdir)
	for _, env := range spec.Env {
		fmt.Fprintf(&sb, "export %s\n", env)
	}
	fmt.Fprintf(&sb, "%s > %s 2>&1\n", shellJoin(spec.Args), logFile)
	sb.WriteString("status=$?\n")
	fmt.Fprintf(&sb, "echo $status > %s\n", markerFile)
	sb.WriteString("exit $status\n")
	return sb.String()
}

func (b *Backend) Poll(handle execution.Handle) (execution.PollStatus, error) {
	h, ok := handle.BackendHandle.(*remoteHandle)
	if !ok {
		return execution.PollStatus{}, fmt.Errorf("invalid handle")
	}
	data, err := os.ReadFile(filepath.Join(h.workdir, markerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return execution.PollStatus{State: execution.StateRunning}, nil
		}
		return execution.PollStatus{}, fmt.Errorf("read completion marker: %w", err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return execution.PollStatus{}, fmt.Errorf("malformed completion marker %q", strings.TrimSpace(string(data)))
	}
	return execution.PollStatus{State: execution.StateExited, ExitCode: code}, nil
}

func (b *Backend) Kill(handle execution.Handle) error {
	h, ok := handle.BackendHandle.(*remoteHandle)
	if !ok {
		return fmt.Errorf("invalid handle")
	}
	if len(b.opts.Cancel) == 0 || h.schedulerID == "" {
		return nil
	}
	args := append(append([]string{}, b.opts.Cancel...), h.schedulerID)
	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		// A job that already finished cannot be cancelled; that is not
		// a failure of Kill.
		if _, statErr := os.Stat(filepath.Join(h.workdir, markerFile)); statErr == nil {
			return nil
		}
		return fmt.Errorf("cancel %s: %w: %s", h.schedulerID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *Backend) Logs(handle execution.Handle) string {
	h, ok := handle.BackendHandle.(*remoteHandle)
	if !ok {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(h.workdir, logFile))
	if err != nil {
		return ""
	}
	return string(data)
}

func (b *Backend) Cleanup(handle execution.Handle) error {
	return nil
}

// schedulerID extracts the job id from the submission output, e.g.
// "Submitted batch job 12345" yields "12345".
func schedulerID(out string) string {
	fields := strings.Fields(out)
	for i := len(fields) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(fields[i]); err == nil {
			return fields[i]
		}
	}
	return ""
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t\"'$") {
			quoted[i] = strconv.Quote(arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}

var _ execution.Backend = (*Backend)(nil)
