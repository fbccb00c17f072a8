package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/vibes/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := os.Getenv("VIBES_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := wire(ctx, config, logger)
	defer deps.Close()

	runner := NewRunner(RunnerOpts{
		Config:       config,
		ConfigPath:   configPath,
		Logger:       logger,
		Spotify:      deps.spotify,
		Enricher:     deps.enricher,
		Graph:        deps.graph,
		History:      deps.history,
		Orchestrator: deps.orchestrator,
	})

	app := &cli.Command{
		Name:     "vibes",
		Usage:    "Vibe-based music recommendations backed by a listening preference graph",
		Version:  "0.3.0",
		Flags:    []cli.Flag{&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"}},
		Before:   runner.before,
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			return
		}
		deps.Close()
		logger.Fatalf("application error: %v", err)
	}
}
