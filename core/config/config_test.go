package config

import (
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.EngineCommand[0] != "oommf" {
		t.Fatalf("engine command %v", cfg.EngineCommand)
	}
	if cfg.Timeout != 0 {
		t.Fatal("default should not impose a run timeout")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SPINDRIVE_OOMMF", "/opt/oommf/oommf")
	t.Setenv("SPINDRIVE_DOCKER_SOCKET", "/run/user/1000/docker.sock")
	t.Setenv("SPINDRIVE_DOCKER_IMAGE", "oommf/oommf:2.0")
	t.Setenv("OOMMF_THREADS", "4")

	cfg := FromEnv()
	if cfg.EngineCommand[0] != "/opt/oommf/oommf" {
		t.Fatalf("engine command %v", cfg.EngineCommand)
	}
	if cfg.DockerSocket != "/run/user/1000/docker.sock" {
		t.Fatalf("socket %s", cfg.DockerSocket)
	}
	if cfg.DockerImage != "oommf/oommf:2.0" {
		t.Fatalf("image %s", cfg.DockerImage)
	}
	if cfg.Threads != 4 {
		t.Fatalf("threads %d", cfg.Threads)
	}
}

func TestFromEnvIgnoresBadThreads(t *testing.T) {
	t.Setenv("OOMMF_THREADS", "many")
	if cfg := FromEnv(); cfg.Threads != 0 {
		t.Fatalf("threads %d, want engine default", cfg.Threads)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no engine command", func(c *Config) { c.EngineCommand = nil }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"negative retries", func(c *Config) { c.LaunchRetries = -1 }},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
