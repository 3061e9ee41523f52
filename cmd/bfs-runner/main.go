// Command bfs-runner serves the planforge runner protocol on stdio with the
// native breadth-first planner. It builds for GOOS=wasip1 as well, where the
// wasm engine feeds it one request per instantiation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/engines/native"
	"github.com/openfroyo/planforge/pkg/runner"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

const version = "1.0.0"

func main() {
	quiet := flag.Bool("quiet", false, "disable logging")
	level := flag.String("log-level", "info", "log level written to stderr")
	flag.Parse()

	logger := telemetry.NopLogger()
	if !*quiet {
		logger = telemetry.NewLoggerTo(os.Stderr, telemetry.LoggingConfig{Level: *level, Format: "json"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := &runner.Server{
		Engine:  native.Name,
		Factory: newSolver,
		Metadata: map[string]string{
			"version": version,
		},
		Logger: logger,
	}

	requests, err := server.Serve(ctx, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bfs-runner: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("requests", requests).Debug("exiting")
}

func newSolver(params engine.Params) (engine.Solver, error) {
	opts, err := native.OptionsFromParams(params)
	if err != nil {
		return nil, err
	}
	return native.New(opts), nil
}
