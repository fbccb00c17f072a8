// package models defines the data model for the preference graph and recommendation pipeline
package models

import (
	"slices"
	"time"
)

// NodeType enumerates preference graph vertex kinds.
type NodeType string

const (
	NodeSong         NodeType = "SONG"
	NodeArtist       NodeType = "ARTIST"
	NodeGenre        NodeType = "GENRE"
	NodeVibe         NodeType = "VIBE"
	NodeAudioFeature NodeType = "AUDIO_FEATURE"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeSong, NodeArtist, NodeGenre, NodeVibe, NodeAudioFeature:
		return true
	}
	return false
}

// EdgeType enumerates weighted relations between nodes.
type EdgeType string

const (
	EdgeSimilar    EdgeType = "SIMILAR"
	EdgeSameArtist EdgeType = "SAME_ARTIST"
	EdgeInGenre    EdgeType = "IN_GENRE"
	EdgeHasVibe    EdgeType = "HAS_VIBE"
	EdgeNext       EdgeType = "NEXT"
	EdgeRelated    EdgeType = "RELATED"
	EdgeHasGenre   EdgeType = "HAS_GENRE"
	EdgeHasFeature EdgeType = "HAS_FEATURE"
)

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeSimilar, EdgeSameArtist, EdgeInGenre, EdgeHasVibe, EdgeNext, EdgeRelated, EdgeHasGenre, EdgeHasFeature:
		return true
	}
	return false
}

// EdgeReinforcement is added to an existing edge's weight each time the same (source, target, type) is connected again.
const EdgeReinforcement = 0.5

// DefaultEdgeWeight is the weight of a freshly created edge when the caller passes none.
const DefaultEdgeWeight = 1.0

// Position is an optional layout coordinate carried for graph visualizations.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex of the preference graph.
//
// Identity: a non-empty ExternalID identifies the entity on its own (two recordings may share a title).
// Without an ExternalID, identity is (Type, Name).
type Node struct {
	ID           string     `json:"id"`
	Type         NodeType   `json:"type"`
	Name         string     `json:"name"`
	ExternalID   string     `json:"externalId,omitempty"`
	Attributes   Attributes `json:"attributes"`
	PlayCount    int        `json:"playCount"`
	LastPlayedAt time.Time  `json:"lastPlayedAt"`
	Position     *Position  `json:"position,omitempty"`
}

// Artist returns the song's artist attribute.
func (n *Node) Artist() string {
	return n.Attributes.Artist
}

// PlayedBefore reports whether the node was last played strictly before t. Never-played nodes qualify.
func (n *Node) PlayedBefore(t time.Time) bool {
	return n.LastPlayedAt.IsZero() || n.LastPlayedAt.Before(t)
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = n.Attributes.Clone()
	if n.Position != nil {
		p := *n.Position
		c.Position = &p
	}
	return &c
}

// Edge is a weighted directed relation. (Source, Target, Type) is unique.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
}

// Key returns the identity key of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// EdgeKey identifies an edge.
type EdgeKey struct {
	Source string
	Target string
	Type   EdgeType
}

// Snapshot is a point-in-time copy of the whole graph.
type Snapshot struct {
	Nodes   []*Node   `json:"nodes"`
	Edges   []Edge    `json:"edges"`
	TakenAt time.Time `json:"takenAt"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		Nodes:   make([]*Node, 0, len(s.Nodes)),
		Edges:   slices.Clone(s.Edges),
		TakenAt: s.TakenAt,
	}
	for _, n := range s.Nodes {
		c.Nodes = append(c.Nodes, n.Clone())
	}
	return c
}

// Neighbor is an outgoing edge hydrated with its target node.
type Neighbor struct {
	NodeID     string   `json:"nodeId"`
	Type       NodeType `json:"type"`
	Name       string   `json:"name"`
	Artist     string   `json:"artist,omitempty"`
	ExternalID string   `json:"externalId,omitempty"`
	EdgeType   EdgeType `json:"edgeType"`
	Weight     float64  `json:"weight"`
}

// GenreStat aggregates HAS_GENRE edges pointing at one genre.
type GenreStat struct {
	Name        string  `json:"name"`
	SongCount   int     `json:"songCount"`
	TotalWeight float64 `json:"totalWeight"`
}

// TasteProfile summarizes listening history for prompt context.
type TasteProfile struct {
	ClusterReps  []*Node        `json:"clusterReps"`
	TopGenres    []GenreStat    `json:"topGenres"`
	RecentVibes  []string       `json:"recentVibes"`
	AudioProfile *AudioFeatures `json:"audioProfile,omitempty"`
}

// SessionSong is one song of a listening session or ingestion batch.
type SessionSong struct {
	Name       string         `json:"name"`
	Artist     string         `json:"artist"`
	ExternalID string         `json:"externalId"`
	Visited    bool           `json:"visited"`
	Album      string         `json:"album,omitempty"`
	Genres     []string       `json:"genres,omitempty"`
	Features   *AudioFeatures `json:"features,omitempty"`
	Popularity int            `json:"popularity,omitempty"`
	ArtworkURL string         `json:"artworkUrl,omitempty"`
}
