package models

import (
	"maps"
	"slices"
)

// AudioFeatures holds the provider's audio analysis for a song.
//
// Energy, Valence and Danceability are in [0,1] and drive clustering.
type AudioFeatures struct {
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Danceability     float64 `json:"danceability"`
	Tempo            float64 `json:"tempo,omitempty"`
	Acousticness     float64 `json:"acousticness,omitempty"`
	Instrumentalness float64 `json:"instrumentalness,omitempty"`
}

// Attributes is the typed attribute record of a node.
//
// Songs use Artist, Album, ArtworkURL, Popularity, Genres and Features.
// Artists use Genres. Vibes use Description. Extra carries anything else.
type Attributes struct {
	Artist      string            `json:"artist,omitempty"`
	Album       string            `json:"album,omitempty"`
	ArtworkURL  string            `json:"artworkUrl,omitempty"`
	Popularity  int               `json:"popularity,omitempty"`
	Genres      []string          `json:"genres,omitempty"`
	Features    *AudioFeatures    `json:"features,omitempty"`
	Description string            `json:"description,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Merge shallow-merges other into a copy of a: non-zero fields of other win, Extra merges per key.
func (a Attributes) Merge(other Attributes) Attributes {
	out := a.Clone()
	if other.Artist != "" {
		out.Artist = other.Artist
	}
	if other.Album != "" {
		out.Album = other.Album
	}
	if other.ArtworkURL != "" {
		out.ArtworkURL = other.ArtworkURL
	}
	if other.Popularity != 0 {
		out.Popularity = other.Popularity
	}
	if len(other.Genres) > 0 {
		out.Genres = slices.Clone(other.Genres)
	}
	if other.Features != nil {
		f := *other.Features
		out.Features = &f
	}
	if other.Description != "" {
		out.Description = other.Description
	}
	if len(other.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(other.Extra))
		}
		maps.Copy(out.Extra, other.Extra)
	}
	return out
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	c := a
	c.Genres = slices.Clone(a.Genres)
	if a.Features != nil {
		f := *a.Features
		c.Features = &f
	}
	if a.Extra != nil {
		c.Extra = maps.Clone(a.Extra)
	}
	return c
}
