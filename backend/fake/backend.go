// Package fake is a scripted backend for contract tests.
package fake

import (
	"context"
	"sync/atomic"

	"spindrive/core/execution"
)

// Backend is a configurable fake. Poll returns StateRunning for the
// first RunningPolls calls, then the configured terminal status.
// OnStart, when set, runs inside Start with the spec (tests use it to
// drop output files into the workspace).
type Backend struct {
	AvailableErr error
	StartErr     error
	// FailStarts limits StartErr to the first N Start calls; zero
	// means every call fails while StartErr is set.
	FailStarts   int
	RunningPolls int
	// PollErr makes every Poll fail while set.
	PollErr  error
	Terminal execution.PollStatus
	LogText  string
	OnStart  func(spec execution.Spec) error

	polls      atomic.Int64
	starts     atomic.Int64
	kills      atomic.Int64
	cleanups   atomic.Int64
	availCalls atomic.Int64
}

func New() *Backend {
	return &Backend{Terminal: execution.PollStatus{State: execution.StateExited}}
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Available(ctx context.Context) error {
	b.availCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.AvailableErr
}

func (b *Backend) Start(ctx context.Context, spec execution.Spec) (execution.Handle, error) {
	n := b.starts.Add(1)
	if b.StartErr != nil && (b.FailStarts == 0 || int(n) <= b.FailStarts) {
		return execution.Handle{}, b.StartErr
	}
	if b.OnStart != nil {
		if err := b.OnStart(spec); err != nil {
			return execution.Handle{}, err
		}
	}
	return execution.Handle{ID: "fake", BackendHandle: spec.Workdir}, nil
}

func (b *Backend) Poll(h execution.Handle) (execution.PollStatus, error) {
	n := b.polls.Add(1)
	if b.PollErr != nil {
		return execution.PollStatus{}, b.PollErr
	}
	if int(n) <= b.RunningPolls {
		return execution.PollStatus{State: execution.StateRunning}, nil
	}
	return b.Terminal, nil
}

func (b *Backend) Kill(h execution.Handle) error {
	b.kills.Add(1)
	return nil
}

func (b *Backend) Logs(h execution.Handle) string { return b.LogText }

func (b *Backend) Cleanup(h execution.Handle) error {
	b.cleanups.Add(1)
	return nil
}

// Kills reports how many times Kill was called.
func (b *Backend) Kills() int { return int(b.kills.Load()) }

// Starts reports how many times Start was called.
func (b *Backend) Starts() int { return int(b.starts.Load()) }

// Polls reports how many times Poll was called.
func (b *Backend) Polls() int { return int(b.polls.Load()) }

// Cleanups reports how many times Cleanup was called.
func (b *Backend) Cleanups() int { return int(b.cleanups.Load()) }

var _ execution.Backend = (*Backend)(nil)
