package main

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vibes/internal/ai"
	"github.com/desertthunder/vibes/internal/graph"
	"github.com/desertthunder/vibes/internal/persistence"
	"github.com/desertthunder/vibes/internal/recommend"
	"github.com/desertthunder/vibes/internal/repositories"
	"github.com/desertthunder/vibes/internal/services"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/desertthunder/vibes/internal/validation"
)

// dependencies is the object graph built once at startup.
type dependencies struct {
	kv           persistence.KV
	graph        *graph.Store
	history      *persistence.History
	spotify      services.Service
	enricher     services.Enricher
	orchestrator *recommend.Orchestrator
	logger       *log.Logger

	closeOnce sync.Once
}

// wire builds every collaborator from config. Nothing here is fatal: unavailable storage falls back to
// memory and missing credentials leave the corresponding service nil.
func wire(ctx context.Context, config *shared.Config, logger *log.Logger) *dependencies {
	d := &dependencies{logger: logger}

	kv, err := persistence.Open(config.Storage)
	if err != nil {
		logger.Warn("failed to open storage, falling back to memory", "driver", config.Storage.Driver, "error", err)
		kv = persistence.NewMemoryKV()
	}
	d.kv = kv

	d.graph = graph.New(openGraphBackend(ctx, config, kv, logger), shared.WithLogger(logger, "component", "graph"))
	d.history = persistence.NewHistory(kv, shared.WithLogger(logger, "component", "history"))

	aiLogger := shared.WithLogger(logger, "component", "ai")
	suggester := ai.NewSuggester(ai.NewClient(config.Credentials.AI, aiLogger), aiLogger)

	opts := recommend.OrchestratorOpts{
		Graph:            d.graph,
		Suggester:        suggester,
		History:          d.history,
		Logger:           shared.WithLogger(logger, "component", "recommend"),
		VibeOptionTarget: config.Recommend.VibeOptionTarget,
		RescueTarget:     config.Recommend.RescueTarget,
		ExpandTarget:     config.Recommend.ExpandTarget,
		ExclusionTTL:     config.Recommend.ExclusionTTL(),
	}

	if spotify, err := connectSpotify(ctx, config.Credentials.Spotify, logger); err != nil {
		logger.Warn("spotify unavailable, recommendations and ingestion are disabled", "error", err)
	} else {
		d.spotify, d.enricher = spotify, spotify
		opts.Recommender = spotify
		opts.Validator = validation.New(spotify, suggester, shared.WithLogger(logger, "component", "validation"))
	}

	d.orchestrator = recommend.NewOrchestrator(opts)
	return d
}

// openGraphBackend returns the configured backend. A SQLite database that cannot be opened falls back
// to the in-memory graph persisted through kv.
func openGraphBackend(ctx context.Context, config *shared.Config, kv persistence.KV, logger *log.Logger) graph.Backend {
	if config.Graph.Backend == shared.GraphBackendSQLite {
		db, err := shared.OpenGraphDatabase(config.Database)
		if err == nil {
			logger.Debug("using sqlite graph", "path", config.Database.Path)
			return repositories.NewSQLiteGraph(db)
		}
		logger.Warn("sqlite graph unavailable, falling back to memory", "path", config.Database.Path, "error", err)
	}

	mg := repositories.NewMemoryGraph(persistence.NewSnapshotStore(kv, config.Graph.SnapshotKey), shared.WithLogger(logger, "component", "memory_graph"))
	if err := mg.Load(ctx); err != nil {
		logger.Warn("starting with an empty graph", "error", err)
	}
	return mg
}

func connectSpotify(ctx context.Context, cfg shared.SpotifyConfig, logger *log.Logger) (*services.SpotifyService, error) {
	creds := cfg.Map()
	svc, err := services.NewSpotifyService(creds, cfg.RateLimit, shared.WithLogger(logger, "component", "spotify"))
	if err != nil {
		return nil, err
	}
	if err := svc.Authenticate(ctx, creds); err != nil {
		return nil, err
	}
	return svc, nil
}

// Close flushes the graph and releases storage. The graph closes first since the memory backend
// writes its final snapshot through kv.
func (d *dependencies) Close() {
	d.closeOnce.Do(func() {
		if err := d.graph.Close(); err != nil {
			d.logger.Warn("failed to close graph", "error", err)
		}
		if err := d.kv.Close(); err != nil {
			d.logger.Warn("failed to close storage", "error", err)
		}
	})
}
