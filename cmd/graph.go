package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/desertthunder/vibes/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// GraphIngest loads Spotify playlists into the preference graph.
//
// All playlists are ingested when no --playlist is given.
func (r *Runner) GraphIngest(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.StringSlice("playlist")
	manifest := cmd.String("manifest")
	if manifest == "" && cmd.Bool("save") {
		manifest = fmt.Sprintf("ingest_%s.json", time.Now().Format("20060102_150405"))
	}

	r.logger.Info("starting ingestion", "playlists", len(ids), "workers", cmd.Int("workers"))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchPlaylists:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.ExportPlaylist:
				r.writePlain("   %s\n", update.Message)
			case tasks.IngestGraph:
				r.writePlain("🕸  %s\n", update.Message)
			}
		}
	}()

	result, err := r.engine.IngestPlaylists(ctx, progressCh, ids, tasks.IngestOpts{
		NumWorkers:   cmd.Int("workers"),
		RateLimit:    cmd.Float("rate"),
		ManifestPath: manifest,
	})
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.graph.Sync(ctx)

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Ingestion Complete!")
	r.writePlain("Playlists: %d/%d succeeded\n", result.Successful, result.TotalPlaylists)
	r.writePlain("Songs ingested: %d\n", result.SongsIngested)

	if result.Failed > 0 {
		r.writePlain("\nFailed playlists:\n")
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %v\n", cmp.Or(res.PlaylistName, res.PlaylistID), res.Error)
			}
		}
	}
	if result.ManifestPath != "" {
		r.writePlain("\nManifest saved to: %s\n", result.ManifestPath)
	}
	return nil
}

// GraphStats prints node and edge counts per type.
func (r *Runner) GraphStats(ctx context.Context, cmd *cli.Command) error {
	stats := r.graph.Stats(ctx)
	if cmd.Bool("json") {
		return r.writeJSON(stats, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Preference Graph")
	r.writePlain("Nodes:\n")
	for _, t := range sortedKeys(stats.Nodes) {
		r.writePlain("  %-14s %d\n", t, stats.Nodes[t])
	}
	r.writePlain("Edges:\n")
	for _, t := range sortedKeys(stats.Edges) {
		r.writePlain("  %-14s %d\n", t, stats.Edges[t])
	}
	return nil
}

// GraphGenres lists the strongest genres.
func (r *Runner) GraphGenres(ctx context.Context, cmd *cli.Command) error {
	genres := r.graph.GetTopGenres(ctx, cmd.Int("limit"))
	if cmd.Bool("json") {
		return r.writeJSON(genres, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Top genres (%d)", len(genres)))
	for i, g := range genres {
		r.writePlain("%d. %s (%d songs, weight %.1f)\n", i+1, g.Name, g.SongCount, g.TotalWeight)
	}
	return nil
}

// GraphNeighbors lists the strongest outgoing edges of a song.
func (r *Runner) GraphNeighbors(ctx context.Context, cmd *cli.Command) error {
	node := r.graph.FindSong(ctx, cmd.String("id"), cmd.String("title"), cmd.String("artist"))
	if node == nil {
		return fmt.Errorf("%w: no song matches", shared.ErrNodeNotFound)
	}

	neighbors := r.graph.GetNeighbors(ctx, node.ID, cmd.Int("limit"))
	if cmd.Bool("json") {
		return r.writeJSON(neighbors, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (%d neighbors)", node.Name, len(neighbors)))
	for _, n := range neighbors {
		label := n.Name
		if n.Artist != "" {
			label = shared.DisplayKey(n.Name, n.Artist)
		}
		r.writePlain("  %-8s %s\n", n.Type, label)
	}
	return nil
}

// GraphNext suggests the song to play after a seed song.
func (r *Runner) GraphNext(ctx context.Context, cmd *cli.Command) error {
	node := r.graph.FindSong(ctx, cmd.String("id"), cmd.String("title"), cmd.String("artist"))
	if node == nil {
		return fmt.Errorf("%w: no song matches", shared.ErrNodeNotFound)
	}

	next := r.graph.GetNextSuggested(ctx, node.ID, cmd.StringSlice("exclude"))
	if cmd.Bool("json") {
		return r.writeJSON(next, cmd.Bool("pretty"))
	}

	if next == nil {
		r.writePlain("Nothing to play after %s\n", node.Name)
		return nil
	}
	r.writePlain("Next: %s\n", shared.DisplayKey(next.Name, next.Artist()))
	return nil
}

// GraphSnapshot writes the whole graph as JSON.
func (r *Runner) GraphSnapshot(ctx context.Context, cmd *cli.Command) error {
	snap := r.graph.GetGraphSnapshot(ctx, true)

	outputPath := cmd.String("output")
	if outputPath == "" {
		return r.writeJSON(snap, cmd.Bool("pretty"))
	}

	data, err := shared.MarshalJSON(snap, true)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	r.writePlain("✓ Saved %d nodes and %d edges to %s\n", len(snap.Nodes), len(snap.Edges), outputPath)
	return nil
}

// GraphRestore replaces the graph with a snapshot file.
func (r *Runner) GraphRestore(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: snapshot path", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if !r.graph.Restore(ctx, &snap) {
		return fmt.Errorf("%w: restore failed", shared.ErrGraphUnavailable)
	}

	r.writePlain("✓ Restored %d nodes and %d edges\n", len(snap.Nodes), len(snap.Edges))
	return nil
}

// GraphClear removes every node and edge.
func (r *Runner) GraphClear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to clear the graph", shared.ErrMissingArgument)
	}

	if !r.graph.Clear(ctx) {
		return fmt.Errorf("%w: clear failed", shared.ErrGraphUnavailable)
	}

	r.writePlain("✓ Graph cleared\n")
	return nil
}

// GraphCommit writes a finished listening session from a JSON file into the graph.
func (r *Runner) GraphCommit(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.tracker()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var songs []models.SessionSong
	if err := json.Unmarshal(data, &songs); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	vibe := orch.CommitSession(ctx, cmd.String("vibe"), songs)
	if vibe == nil {
		return fmt.Errorf("%w: session was not committed", shared.ErrGraphUnavailable)
	}
	r.graph.Sync(ctx)

	r.writePlain("✓ Committed %d songs to vibe %s\n", len(songs), vibe.Name)
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func graphCommand(r *Runner) *cli.Command {
	outputFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
		}
	}

	return &cli.Command{
		Name:  "graph",
		Usage: "Preference graph operations",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "Load Spotify playlists into the graph",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "playlist",
						Aliases: []string{"p"},
						Usage:   "Playlist ID to ingest (repeatable, default: all)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent enrichment workers",
						Value: 4,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Playlist exports per second",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "manifest",
						Usage: "Write a JSON run summary to this path",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Write a timestamped run summary",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.GraphIngest,
			},
			{
				Name:   "stats",
				Usage:  "Count nodes and edges",
				Flags:  outputFlags(),
				Action: r.GraphStats,
			},
			{
				Name:  "genres",
				Usage: "List top genres",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of genres", Value: 10},
				}, outputFlags()...),
				Action: r.GraphGenres,
			},
			{
				Name:  "neighbors",
				Usage: "List a song's strongest connections",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Song ID or URI"},
					&cli.StringFlag{Name: "title", Usage: "Song title"},
					&cli.StringFlag{Name: "artist", Usage: "Song artist"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of neighbors", Value: 10},
				}, outputFlags()...),
				Action: r.GraphNeighbors,
			},
			{
				Name:  "next",
				Usage: "Suggest the song to play after a seed song",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Song ID or URI"},
					&cli.StringFlag{Name: "title", Usage: "Song title"},
					&cli.StringFlag{Name: "artist", Usage: "Song artist"},
					&cli.StringSliceFlag{Name: "exclude", Usage: "Node or track ID to skip (repeatable)"},
				}, outputFlags()...),
				Action: r.GraphNext,
			},
			{
				Name:  "snapshot",
				Usage: "Export the graph as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.GraphSnapshot,
			},
			{
				Name:      "restore",
				Usage:     "Replace the graph with a snapshot file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Action:    r.GraphRestore,
			},
			{
				Name:  "clear",
				Usage: "Remove every node and edge",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm clearing the graph"},
				},
				Action: r.GraphClear,
			},
			{
				Name:  "commit",
				Usage: "Commit a listening session to a vibe",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "vibe",
						Usage:    "Vibe name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "JSON array of session songs",
						Required: true,
					},
				},
				Action: r.GraphCommit,
			},
		},
	}
}
