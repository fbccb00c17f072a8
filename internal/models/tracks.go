package models

import "fmt"

// RawSuggestion is an untrusted track suggestion produced by the AI provider.
type RawSuggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Query  string `json:"query,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Label formats the suggestion as "title - artist".
func (s RawSuggestion) Label() string {
	return fmt.Sprintf("%s - %s", s.Title, s.Artist)
}

// Candidate is a track returned by the search provider.
type Candidate struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ExternalID string `json:"externalId"`
	Popularity int    `json:"popularity"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
}

// ValidatedTrack is a suggestion confirmed against the search provider.
type ValidatedTrack struct {
	Title              string `json:"title"`
	Artist             string `json:"artist"`
	ExternalID         string `json:"externalId"`
	ArtworkURL         string `json:"artwork,omitempty"`
	Reason             string `json:"reason,omitempty"`
	OriginalSuggestion string `json:"originalSuggestion,omitempty"`
}

// Label formats the track as "title - artist".
func (v ValidatedTrack) Label() string {
	return fmt.Sprintf("%s - %s", v.Title, v.Artist)
}

// VibeOption is one browseable vibe with the seed track that starts it.
type VibeOption struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Track       RawSuggestion   `json:"track"`
	Reason      string          `json:"reason,omitempty"`
	Seed        *ValidatedTrack `json:"seed,omitempty"`
}

// Result sources, one per cascade tier.
const (
	SourceAI          = "ai"
	SourceGraphHybrid = "graph-hybrid"
	SourceFavorites   = "favorites"
)

// VibeResult is the shared shape of rescue and expand responses.
type VibeResult struct {
	Items     []ValidatedTrack `json:"items"`
	Vibe      string           `json:"vibe"`
	Reasoning string           `json:"reasoning,omitempty"`
	Source    string           `json:"source"`
	Message   string           `json:"message,omitempty"`
}

// Suggestions is the AI provider's unvalidated answer for rescue and expand requests.
type Suggestions struct {
	Items     []RawSuggestion `json:"items"`
	Vibe      string          `json:"vibe,omitempty"`
	Mood      string          `json:"mood,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
}

// FavoriteTrack is a frequently played or liked track from the persistence layer.
type FavoriteTrack struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ExternalID string `json:"externalId"`
	PlayCount  int    `json:"playCount"`
	Liked      bool   `json:"liked,omitempty"`
}

// PlayedTrack identifies a track reported as played by the playback layer.
type PlayedTrack struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ExternalID string `json:"externalId"`
}
