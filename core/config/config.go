// Package config carries the runtime settings for driving the engine.
// Settings are explicit values passed into the orchestrator, never
// process-global state, so tests can inject deterministic fakes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config drives backend selection and monitoring behaviour.
type Config struct {
	// EngineCommand launches the engine's batch solver; the MIF path
	// and trailing engine flags are appended per job.
	EngineCommand []string
	// Threads limits the engine's worker threads; zero keeps the
	// engine default.
	Threads int

	// DockerSocket is the container daemon's control socket.
	DockerSocket string
	// DockerImage is the engine image for containerised runs.
	DockerImage string

	// PollInterval is the sleep between completion polls.
	PollInterval time.Duration
	// Timeout is the wall-clock ceiling for one run; zero disables it.
	Timeout time.Duration
	// LaunchRetries bounds retries of transient launch failures.
	LaunchRetries int
	// RetryBackoff is the initial backoff between launch retries; it
	// doubles per attempt.
	RetryBackoff time.Duration
}

// Defaults returns the baseline configuration for a local engine
// installation.
func Defaults() Config {
	return Config{
		EngineCommand: []string{"oommf", "boxsi", "+fg"},
		DockerSocket:  "/var/run/docker.sock",
		DockerImage:   "ubermag/oommf",
		PollInterval:  250 * time.Millisecond,
		LaunchRetries: 3,
		RetryBackoff:  time.Second,
	}
}

// FromEnv overlays environment overrides on the defaults.
func FromEnv() Config {
	cfg := Defaults()
	if v := os.Getenv("SPINDRIVE_OOMMF"); v != "" {
		cfg.EngineCommand = []string{v, "boxsi", "+fg"}
	}
	if v := os.Getenv("SPINDRIVE_DOCKER_SOCKET"); v != "" {
		cfg.DockerSocket = v
	}
	if v := os.Getenv("SPINDRIVE_DOCKER_IMAGE"); v != "" {
		cfg.DockerImage = v
	}
	if v := os.Getenv("OOMMF_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Threads = n
		}
	}
	return cfg
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if len(c.EngineCommand) == 0 {
		return fmt.Errorf("engine command required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.LaunchRetries < 0 {
		return fmt.Errorf("launch retries must not be negative")
	}
	return nil
}
