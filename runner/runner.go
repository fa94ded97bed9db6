// Package runner composes input generation, backend execution,
// completion monitoring and output parsing into one synchronous call
// per drive.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"spindrive/backend/docker"
	"spindrive/backend/local"
	"spindrive/backend/remote"
	"spindrive/core/config"
	"spindrive/core/driver"
	"spindrive/core/execution"
	"spindrive/core/job"
	"spindrive/core/model"
	"spindrive/core/pool"
	"spindrive/mif"
	"spindrive/odt"
	"spindrive/ovf"
)

// RunOptions tune a single drive without touching shared config.
type RunOptions struct {
	// Backend selects the registered backend; empty means "local".
	Backend string
	// BaseDir is where the per-system workspace tree is created;
	// empty means the current directory.
	BaseDir string
	// KeepWorkspace retains the workspace (input, outputs and
	// outcome.json) instead of removing it after result extraction.
	KeepWorkspace bool
	// Remote configures the scheduler submission for the remote
	// backend and is ignored otherwise.
	Remote remote.Options
	MIF    mif.Options
}

// Runner orchestrates drives against a configured set of backends.
type Runner struct {
	Config   config.Config
	Registry *execution.Registry
	Log      *log.Logger
}

// New builds a Runner with the standard backends registered. Tests
// register fakes on the returned Registry instead.
func New(cfg config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := execution.NewRegistry()
	reg.Register("local", local.New(local.Options{Engine: cfg.EngineCommand}))
	reg.Register("docker", docker.New(docker.Options{
		Socket: cfg.DockerSocket,
		Image:  cfg.DockerImage,
	}))
	return &Runner{
		Config:   cfg,
		Registry: reg,
		Log:      log.New(os.Stderr, "spindrive: ", 0),
	}, nil
}

// Run drives system with drv and returns the assembled result.
//
// The workspace is removed on every path unless KeepWorkspace is set.
// Transient launch failures (an unreachable container daemon) are
// retried with backoff up to the configured bound; input errors and
// engine failures are returned to the caller untouched, since only the
// caller can fix them.
func (r *Runner) Run(ctx context.Context, system model.System, drv driver.Driver, opts RunOptions) (*Result, error) {
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = "."
	}

	j, err := job.New(baseDir, system.Name)
	if err != nil {
		return nil, err
	}
	keep := opts.KeepWorkspace
	defer func() {
		if !keep {
			if err := j.Remove(); err != nil {
				r.logf("remove workspace %s: %v", j.Workspace, err)
			}
		}
	}()

	mifPath, err := mif.Write(system, drv, j.Workspace, opts.MIF)
	if err != nil {
		return nil, err
	}
	j.InputPath = mifPath
	if err := j.WriteInfo(string(drv.Kind()), drv.Args()); err != nil {
		return nil, err
	}

	backendName := opts.Backend
	if backendName == "" {
		backendName = "local"
	}
	var backend execution.Backend
	if backendName == "remote" {
		// The remote backend carries per-drive submission options, so it
		// is built for this call rather than registered: concurrent
		// drives must never see each other's scheduler commands.
		backend = remote.New(opts.Remote)
	} else {
		backend, err = r.Registry.Get(backendName)
		if err != nil {
			return nil, err
		}
	}

	spec := execution.Spec{
		Args:    r.engineArgs(system.Name),
		Workdir: j.Workspace,
	}

	handle, err := r.launch(ctx, backend, spec)
	if err != nil {
		return nil, err
	}
	j.Status = execution.StatusRunning
	r.logf("running engine for %s (backend=%s, workspace=%s)", system.Name, backend.Name(), j.Workspace)

	monitor := execution.Monitor{
		PollInterval: r.Config.PollInterval,
		Timeout:      r.Config.Timeout,
	}
	outcome, waitErr := monitor.Wait(ctx, backend, handle, j.Workspace, j.ExpectedOutputs)
	j.Status = outcome.Status
	if cleanupErr := backend.Cleanup(handle); cleanupErr != nil {
		r.logf("backend cleanup: %v", cleanupErr)
	}

	if keep {
		if err := writeOutcome(j.Workspace, outcome); err != nil {
			r.logf("write outcome.json: %v", err)
		}
	}

	if outcome.Status != execution.StatusSucceeded {
		simErr := &SimulationError{JobID: j.ID, Workspace: j.Workspace, Outcome: outcome}
		if waitErr != nil {
			return nil, fmt.Errorf("%w: %s", waitErr, simErr.Error())
		}
		return nil, simErr
	}

	result, err := r.assemble(j, system, drv, outcome)
	if err != nil {
		return nil, err
	}
	if keep {
		result.Workspace = j.Workspace
	}
	r.logf("drive %d of %s succeeded in %s (%d records, %d snapshots)",
		j.Drive, system.Name, outcome.Elapsed.Round(time.Millisecond),
		len(result.Table.Records), len(result.Snapshots))
	return result, nil
}

// launch probes and starts the backend, retrying transient failures
// with doubling backoff. Non-transient errors are never retried.
func (r *Runner) launch(ctx context.Context, backend execution.Backend, spec execution.Spec) (execution.Handle, error) {
	backoff := r.Config.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return execution.Handle{}, err
		}
		lastErr = backend.Available(ctx)
		if lastErr == nil {
			var handle execution.Handle
			handle, lastErr = backend.Start(ctx, spec)
			if lastErr == nil {
				return handle, nil
			}
		}
		if !execution.IsTransient(lastErr) || attempt >= r.Config.LaunchRetries {
			return execution.Handle{}, lastErr
		}
		r.logf("transient launch failure (attempt %d/%d): %v",
			attempt+1, r.Config.LaunchRetries, lastErr)
		select {
		case <-ctx.Done():
			return execution.Handle{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// engineArgs assembles the solver invocation. The input file is named
// relative to the workspace, which is the working directory on every
// backend (mounted or entered).
func (r *Runner) engineArgs(systemName string) []string {
	args := append([]string{}, r.Config.EngineCommand...)
	args = append(args, mif.Filename(systemName), "-exitondone", "1")
	if r.Config.Threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", r.Config.Threads))
	}
	return args
}

func (r *Runner) assemble(j *job.Job, system model.System, drv driver.Driver, outcome execution.Outcome) (*Result, error) {
	table, err := odt.Parse(filepath.Join(j.Workspace, system.Name+".odt"), drv.XColumn())
	if err != nil {
		return nil, err
	}
	snapshots, err := ovf.Glob(filepath.Join(j.Workspace, system.Name+"*.omf"))
	if err != nil {
		return nil, err
	}
	return &Result{
		JobID:     j.ID,
		System:    system.Name,
		Driver:    string(drv.Kind()),
		Drive:     j.Drive,
		Table:     table,
		Snapshots: snapshots,
		Outcome:   outcome,
	}, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

// Drive pairs one system with one driver for batch execution.
type Drive struct {
	System  model.System
	Driver  driver.Driver
	Options RunOptions
}

// Batch runs independent drives concurrently, at most parallel at a
// time. Results and errors are returned positionally; one failed drive
// does not stop the others.
func (r *Runner) Batch(ctx context.Context, drives []Drive, parallel int) ([]*Result, []error) {
	results := make([]*Result, len(drives))
	errs := make([]error, len(drives))
	chans := make([]<-chan error, len(drives))
	p := pool.New(parallel)
	for i, d := range drives {
		i, d := i, d
		chans[i] = p.Go(ctx, func(ctx context.Context) error {
			res, err := r.Run(ctx, d.System, d.Driver, d.Options)
			results[i] = res
			return err
		})
	}
	p.Wait()
	for i, ch := range chans {
		errs[i] = <-ch
	}
	return results, errs
}
