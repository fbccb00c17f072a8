// package services defines interface Service for interacting with HTTP APIs
//
// Spotify
package services

import (
	"context"

	"github.com/desertthunder/vibes/internal/models"
)

// Service defines the interface for music service providers that can export playlists and resolve tracks.
type Service interface {
	// Authenticate performs OAuth or API key authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)

	// ExportPlaylist exports a playlist with all its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error)

	// Search runs a catalog query and returns track candidates in provider order.
	Search(ctx context.Context, query, kind string) ([]models.Candidate, error)

	// Recommendations returns tracks seeded by track ids and genres.
	Recommendations(ctx context.Context, seedIDs, seedGenres []string, count int) ([]models.Candidate, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// Enricher fetches the metadata graph ingestion needs beyond a playlist export.
type Enricher interface {
	AudioFeatures(ctx context.Context, ids []string) (map[string]*models.AudioFeatures, error)
	ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// PlaylistExport represents a playlist with all its tracks
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []Track
}

// Track represents a music track from any service
type Track struct {
	ID         string
	URI        string
	Title      string
	Artist     string
	ArtistID   string
	Album      string
	Duration   int // Duration in seconds
	Popularity int
	ArtworkURL string
}
