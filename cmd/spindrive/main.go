package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spindrive/core/config"
	"spindrive/runner"
	"spindrive/specfile"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		usage()
		os.Exit(2)
	}

	opts, specPath, parseErr := parseRunArgs(os.Args[2:])
	if parseErr != nil {
		fmt.Fprintln(os.Stderr, "spindrive:", parseErr)
		usage()
		os.Exit(2)
	}
	if specPath == "" {
		fmt.Fprintln(os.Stderr, "spindrive: no spec file provided")
		usage()
		os.Exit(2)
	}

	system, drv, err := specfile.Load(specPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spindrive:", err)
		os.Exit(2)
	}

	cfg := config.FromEnv()
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}
	r, err := runner.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spindrive:", err)
		os.Exit(2)
	}
	if !opts.verbose {
		r.Log = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := r.Run(ctx, system, drv, opts.run)
	if err != nil {
		var simErr *runner.SimulationError
		if errors.As(err, &simErr) {
			fmt.Fprintln(os.Stderr, "spindrive:", simErr)
		} else {
			fmt.Fprintln(os.Stderr, "spindrive:", err)
		}
		os.Exit(1)
	}

	fmt.Printf("drive %d of %s: %d records, %d snapshots, %s\n",
		result.Drive, result.System, len(result.Table.Records),
		len(result.Snapshots), result.Outcome.Elapsed.Round(time.Millisecond))
	if result.Workspace != "" {
		fmt.Printf("workspace kept at %s\n", result.Workspace)
	}
}

type cliOptions struct {
	run     runner.RunOptions
	timeout time.Duration
	verbose bool
}

func parseRunArgs(args []string) (cliOptions, string, error) {
	opts := cliOptions{}
	specPath := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--docker":
			opts.run.Backend = "docker"
		case "--keep":
			opts.run.KeepWorkspace = true
		case "--verbose":
			opts.verbose = true
		case "--dir":
			i++
			if i >= len(args) {
				return opts, "", fmt.Errorf("--dir requires a value")
			}
			opts.run.BaseDir = args[i]
		case "--timeout":
			i++
			if i >= len(args) {
				return opts, "", fmt.Errorf("--timeout requires a value")
			}
			d, err := time.ParseDuration(args[i])
			if err != nil {
				return opts, "", fmt.Errorf("bad --timeout: %w", err)
			}
			opts.timeout = d
		default:
			if len(arg) > 0 && arg[0] == '-' {
				return opts, "", fmt.Errorf("unknown flag: %s", arg)
			}
			if specPath != "" {
				return opts, "", fmt.Errorf("multiple spec files given")
			}
			specPath = arg
		}
	}
	return opts, specPath, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: spindrive run [--docker] [--keep] [--verbose] [--dir base] [--timeout d] <spec.yaml>")
}
