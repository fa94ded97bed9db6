// Package driver defines the simulation modes the engine can run. Each
// kind selects an evolver and carries its own stopping criteria.
package driver

import "fmt"

// Kind names a recognised driver.
type Kind string

const (
	// KindMin drives the system to an energy minimum with a conjugate
	// gradient evolver.
	KindMin Kind = "min"
	// KindTime integrates the LLG equation with a Runge-Kutta evolver.
	KindTime Kind = "time"
)

// Driver is implemented by all simulation modes.
type Driver interface {
	Kind() Kind
	// XColumn is the driving column of the tabular output: the column
	// the result table must be monotonic in.
	XColumn() string
	Validate() error
	// Args describe the drive for the info.json metadata record.
	Args() map[string]any
}

// Min relaxes the system until the maximum torque |m x H x m| drops
// below StoppingMxHxM (A/m).
type Min struct {
	// StoppingMxHxM defaults to 0.1 when zero.
	StoppingMxHxM float64
	// MaxIterations bounds the evolver; zero means engine default.
	MaxIterations int
}

func (d Min) Kind() Kind      { return KindMin }
func (d Min) XColumn() string { return "iteration" }

func (d Min) Validate() error {
	if d.StoppingMxHxM < 0 {
		return fmt.Errorf("min driver: stopping_mxHxm must not be negative")
	}
	if d.MaxIterations < 0 {
		return fmt.Errorf("min driver: max iterations must not be negative")
	}
	return nil
}

func (d Min) Args() map[string]any {
	return map[string]any{"stopping_mxHxm": d.Stopping()}
}

// Stopping returns the effective stopping criterion.
func (d Min) Stopping() float64 {
	if d.StoppingMxHxM == 0 {
		return 0.1
	}
	return d.StoppingMxHxM
}

// Time integrates for T seconds split into N equal stages; the table
// gains one row per stage and one field snapshot is saved per stage.
// T is in simulation seconds (typically nanoseconds-scale values),
// not wall-clock time.
type Time struct {
	T float64
	N int
	// Alpha is the Gilbert damping; defaults to the engine's value
	// when zero.
	Alpha float64
}

func (d Time) Kind() Kind      { return KindTime }
func (d Time) XColumn() string { return "simulation time" }

func (d Time) Validate() error {
	if d.T <= 0 {
		return fmt.Errorf("time driver: t must be positive")
	}
	if d.N <= 0 {
		return fmt.Errorf("time driver: n must be positive")
	}
	if d.Alpha < 0 {
		return fmt.Errorf("time driver: alpha must not be negative")
	}
	return nil
}

func (d Time) Args() map[string]any {
	return map[string]any{"t": d.T, "n": d.N}
}

// StageSeconds is the simulated duration of one stage.
func (d Time) StageSeconds() float64 {
	return d.T / float64(d.N)
}
