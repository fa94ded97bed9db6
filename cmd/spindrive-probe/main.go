// spindrive-probe reports whether the simulation environment is
// usable: the engine binary on the host, and the container daemon for
// dockerised runs. An unreachable daemon is reported as exactly that,
// before anyone wastes a run on it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"spindrive/backend/docker"
	"spindrive/backend/local"
	"spindrive/core/config"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failed := false

	lb := local.New(local.Options{Engine: cfg.EngineCommand})
	if err := lb.Available(ctx); err != nil {
		fmt.Printf("local engine:  unavailable (%v)\n", err)
		failed = true
	} else {
		fmt.Printf("local engine:  ok (%s)\n", cfg.EngineCommand[0])
	}

	db := docker.New(docker.Options{Socket: cfg.DockerSocket, Image: cfg.DockerImage})
	if err := db.Available(ctx); err != nil {
		var daemonErr *docker.DaemonUnavailableError
		if errors.As(err, &daemonErr) {
			fmt.Printf("docker daemon: not running (socket %s)\n", cfg.DockerSocket)
		} else {
			fmt.Printf("docker daemon: error (%v)\n", err)
		}
		failed = true
	} else {
		fmt.Printf("docker daemon: ok (image %s)\n", cfg.DockerImage)
	}

	if failed {
		os.Exit(1)
	}
}
