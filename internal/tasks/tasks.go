package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/services"
	"github.com/desertthunder/vibes/internal/shared"
)

// Spotify batch limits for enrichment lookups.
const (
	featureBatchSize = 100
	artistBatchSize  = 50
)

// Graph is the slice of the graph store ingestion writes to.
type Graph interface {
	Ingest(ctx context.Context, songs []models.SessionSong) []*models.Node
}

// PlaylistIngestResult is the outcome for one playlist.
type PlaylistIngestResult struct {
	PlaylistID   string        `json:"playlist_id"`
	PlaylistName string        `json:"playlist_name"`
	Tracks       int           `json:"tracks"`
	Ingested     int           `json:"ingested"`
	Enriched     bool          `json:"enriched"`
	Success      bool          `json:"success"`
	Error        error         `json:"-"`
	Duration     time.Duration `json:"duration"`
}

// IngestResult summarizes a bulk ingestion run.
type IngestResult struct {
	TotalPlaylists int                    `json:"total_playlists"`
	Successful     int                    `json:"successful"`
	Failed         int                    `json:"failed"`
	SongsIngested  int                    `json:"songs_ingested"`
	Results        []PlaylistIngestResult `json:"results"`
	ManifestPath   string                 `json:"-"`
}

// IngestEngine loads playlists from a music service into the graph.
type IngestEngine struct {
	service  services.Service
	enricher services.Enricher
	graph    Graph
	logger   *log.Logger
}

// NewIngestEngine creates an IngestEngine. enricher may be nil, in which case songs are ingested
// without audio features or genres.
func NewIngestEngine(service services.Service, enricher services.Enricher, graph Graph, logger *log.Logger) *IngestEngine {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &IngestEngine{service: service, enricher: enricher, graph: graph, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *IngestEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// enrich fetches audio features and artist genres for a playlist concurrently. Failures leave the
// affected maps partially filled; the returned error is only for reporting.
func (e *IngestEngine) enrich(ctx context.Context, tracks []services.Track) (map[string]*models.AudioFeatures, map[string][]string, error) {
	features := make(map[string]*models.AudioFeatures)
	genres := make(map[string][]string)
	if e.enricher == nil || len(tracks) == 0 {
		return features, genres, nil
	}

	var trackIDs, artistIDs []string
	seenArtists := make(map[string]struct{})
	for _, t := range tracks {
		if t.ID != "" {
			trackIDs = append(trackIDs, t.ID)
		}
		if t.ArtistID == "" {
			continue
		}
		if _, ok := seenArtists[t.ArtistID]; !ok {
			seenArtists[t.ArtistID] = struct{}{}
			artistIDs = append(artistIDs, t.ArtistID)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		for batch := range chunk(trackIDs, featureBatchSize) {
			res, err := e.enricher.AudioFeatures(ctx, batch)
			if err != nil {
				return fmt.Errorf("audio features: %w", err)
			}
			for id, f := range res {
				features[id] = f
			}
		}
		return nil
	})
	g.Go(func() error {
		for batch := range chunk(artistIDs, artistBatchSize) {
			res, err := e.enricher.ArtistGenres(ctx, batch)
			if err != nil {
				return fmt.Errorf("artist genres: %w", err)
			}
			for id, gs := range res {
				genres[id] = gs
			}
		}
		return nil
	})
	err := g.Wait()
	return features, genres, err
}

// toSessionSongs converts playlist tracks into graph ingestion input, in playlist order.
func toSessionSongs(tracks []services.Track, features map[string]*models.AudioFeatures, genres map[string][]string) []models.SessionSong {
	songs := make([]models.SessionSong, 0, len(tracks))
	for _, t := range tracks {
		externalID := t.URI
		if externalID == "" {
			externalID = services.TrackURI(t.ID)
		}
		songs = append(songs, models.SessionSong{
			Name:       t.Title,
			Artist:     t.Artist,
			ExternalID: externalID,
			Album:      t.Album,
			Genres:     genres[t.ArtistID],
			Features:   features[t.ID],
			Popularity: t.Popularity,
			ArtworkURL: t.ArtworkURL,
		})
	}
	return songs
}

// chunk yields consecutive slices of at most size elements.
func chunk(ids []string, size int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for i := 0; i < len(ids); i += size {
			if !yield(ids[i:min(i+size, len(ids))]) {
				return
			}
		}
	}
}
