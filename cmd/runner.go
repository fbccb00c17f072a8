package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vibes/internal/graph"
	"github.com/desertthunder/vibes/internal/persistence"
	"github.com/desertthunder/vibes/internal/recommend"
	"github.com/desertthunder/vibes/internal/repositories"
	"github.com/desertthunder/vibes/internal/services"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/desertthunder/vibes/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config       *shared.Config
	configPath   string
	spotify      services.Service
	graph        *graph.Store
	history      *persistence.History
	orchestrator *recommend.Orchestrator
	logger       *log.Logger
	output       io.Writer
	engine       *tasks.IngestEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config       *shared.Config
	ConfigPath   string
	Spotify      services.Service
	Enricher     services.Enricher
	Graph        *graph.Store
	History      *persistence.History
	Orchestrator *recommend.Orchestrator
	Logger       *log.Logger
	Output       io.Writer
}

// NewRunner creates a new Runner with the provided configuration.
//
// A missing graph or history gets a volatile in-memory one.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Graph == nil {
		opts.Graph = graph.New(repositories.NewMemoryGraph(nil, opts.Logger), opts.Logger)
	}
	if opts.History == nil {
		opts.History = persistence.NewHistory(persistence.NewMemoryKV(), opts.Logger)
	}

	engine := tasks.NewIngestEngine(opts.Spotify, opts.Enricher, opts.Graph, shared.WithLogger(opts.Logger, "component", "ingest"))

	return &Runner{
		config:       opts.Config,
		configPath:   opts.ConfigPath,
		spotify:      opts.Spotify,
		graph:        opts.Graph,
		history:      opts.History,
		orchestrator: opts.Orchestrator,
		logger:       opts.Logger,
		output:       opts.Output,
		engine:       engine,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, vibeCommand, playCommand, feedbackCommand, historyCommand, graphCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before runs ahead of every command and applies global flags.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// recommender returns the orchestrator when the search provider needed to validate suggestions is connected.
func (r *Runner) recommender() (*recommend.Orchestrator, error) {
	if r.orchestrator == nil {
		return nil, fmt.Errorf("%w: recommendations not initialized", shared.ErrServiceUnavailable)
	}
	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configFile())
	}
	return r.orchestrator, nil
}

// tracker returns the orchestrator for history commands, which work offline.
func (r *Runner) tracker() (*recommend.Orchestrator, error) {
	if r.orchestrator == nil {
		return nil, fmt.Errorf("%w: recommendations not initialized", shared.ErrServiceUnavailable)
	}
	return r.orchestrator, nil
}

func (r *Runner) configFile() string {
	if r.configPath == "" {
		return "config.toml"
	}
	return r.configPath
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
