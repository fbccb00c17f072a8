package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/services"
	"github.com/desertthunder/vibes/internal/shared"
)

// IngestOpts contains configuration for bulk playlist ingestion.
type IngestOpts struct {
	NumWorkers   int     // Concurrent enrichment workers (default: 4, max: 10)
	RateLimit    float64 // Playlist exports per second (default: 5)
	ManifestPath string  // Optional JSON summary written after the run
}

type ingestJob struct {
	playlistID string
	export     *services.PlaylistExport
	started    time.Time
}

type preparedPlaylist struct {
	result  PlaylistIngestResult
	songs   []models.SessionSong
	started time.Time
}

// IngestPlaylists exports the given playlists, enriches their tracks and ingests them into the graph.
// With no ids every playlist of the authenticated user is ingested.
//
// Exports are rate limited and enrichment runs on a worker pool. Graph writes happen on the calling
// goroutine, one playlist at a time. A failed playlist is recorded in the result and does not stop the run.
func (e *IngestEngine) IngestPlaylists(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts IngestOpts) (*IngestResult, error) {
	if e.service == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}
	if e.graph == nil {
		return nil, fmt.Errorf("%w: graph not initialized", shared.ErrGraphUnavailable)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if len(ids) == 0 {
		e.sendProgress(prog, fetchPlaylistsUpdate(e.service.Name()))
		playlists, err := e.service.GetPlaylists(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list playlists: %v", shared.ErrAPIRequest, err)
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}

	result := &IngestResult{
		TotalPlaylists: len(ids),
		Results:        make([]PlaylistIngestResult, 0, len(ids)),
	}
	if len(ids) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan ingestJob, len(ids))
	prepared := make(chan preparedPlaylist, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.enrichWorker(ctx, &wg, jobs, prepared)
	}

	go func() {
		defer close(jobs)
		for i, playlistID := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			started := time.Now()
			export, err := e.service.ExportPlaylist(ctx, playlistID)
			if err != nil {
				prepared <- preparedPlaylist{
					result: PlaylistIngestResult{
						PlaylistID:   playlistID,
						PlaylistName: fmt.Sprintf("Unknown (%s)", playlistID),
						Error:        fmt.Errorf("failed to fetch playlist: %w", err),
					},
					started: started,
				}
				continue
			}

			e.sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), export.Playlist.Name))
			jobs <- ingestJob{playlistID: playlistID, export: export, started: started}
		}
	}()

	go func() {
		wg.Wait()
		close(prepared)
	}()

	completed := 0
	for p := range prepared {
		completed++
		res := p.result
		if res.Error == nil {
			e.sendProgress(prog, ingestingPlaylistUpdate(completed, len(ids), res.PlaylistName, len(p.songs)))
			for _, n := range e.graph.Ingest(ctx, p.songs) {
				if n != nil {
					res.Ingested++
				}
			}
			res.Success = true
		}
		res.Duration = time.Since(p.started)
		result.Results = append(result.Results, res)

		if res.Success {
			result.Successful++
			result.SongsIngested += res.Ingested
			e.sendProgress(prog, ingestCompletedUpdate(completed, len(ids), res.PlaylistName, res.Ingested))
		} else {
			result.Failed++
			e.sendProgress(prog, ingestFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
			e.logger.Warn("playlist ingestion failed", "playlist", res.PlaylistID, "error", res.Error)
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if opts.ManifestPath != "" {
		if err := writeManifest(result, opts.ManifestPath); err != nil {
			return result, fmt.Errorf("ingestion completed but failed to write manifest: %w", err)
		}
		result.ManifestPath = opts.ManifestPath
	}

	e.logger.Info("ingestion finished", "playlists", result.TotalPlaylists, "failed", result.Failed, "songs", result.SongsIngested)
	return result, nil
}

// enrichWorker turns exported playlists from the jobs channel into graph ingestion input.
func (e *IngestEngine) enrichWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan ingestJob, prepared chan<- preparedPlaylist) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		features, genres, err := e.enrich(ctx, job.export.Tracks)
		if err != nil {
			e.logger.Warn("enrichment incomplete", "playlist", job.playlistID, "error", err)
		}

		prepared <- preparedPlaylist{
			result: PlaylistIngestResult{
				PlaylistID:   job.playlistID,
				PlaylistName: job.export.Playlist.Name,
				Tracks:       len(job.export.Tracks),
				Enriched:     err == nil && e.enricher != nil,
			},
			songs:   toSessionSongs(job.export.Tracks, features, genres),
			started: job.started,
		}
	}
}

// ingestManifest is the JSON summary written after a run.
type ingestManifest struct {
	CreatedAt time.Time       `json:"created_at"`
	Summary   *IngestResult   `json:"summary"`
	Errors    []manifestError `json:"errors,omitempty"`
}

type manifestError struct {
	PlaylistID string `json:"playlist_id"`
	Error      string `json:"error"`
}

func writeManifest(result *IngestResult, path string) error {
	m := ingestManifest{CreatedAt: time.Now(), Summary: result}
	for _, r := range result.Results {
		if r.Error != nil {
			m.Errors = append(m.Errors, manifestError{PlaylistID: r.PlaylistID, Error: r.Error.Error()})
		}
	}

	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
