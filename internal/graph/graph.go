// package graph implements the typed preference graph built from listening history
package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// Backend is the storage port of the [Store]. Lookups return [shared.ErrNodeNotFound] for missing nodes.
type Backend interface {
	FindNodeByExternalID(ctx context.Context, externalID string) (*models.Node, error)
	// FindNodeByName matches (type, name) among nodes without an external id.
	FindNodeByName(ctx context.Context, t models.NodeType, name string) (*models.Node, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	InsertNode(ctx context.Context, n *models.Node) error
	UpdateNode(ctx context.Context, n *models.Node) error
	// UpsertEdge inserts e or adds increment to the existing edge's weight.
	UpsertEdge(ctx context.Context, e models.Edge, increment float64) (models.Edge, error)
	OutgoingEdges(ctx context.Context, nodeID string) ([]models.Edge, error)
	EdgesByType(ctx context.Context, t models.EdgeType) ([]models.Edge, error)
	NodesByType(ctx context.Context, t models.NodeType) ([]*models.Node, error)
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	Restore(ctx context.Context, snap *models.Snapshot) error
	Clear(ctx context.Context) error
	// Sync flushes to external persistence, if the backend has any.
	Sync(ctx context.Context) error
	Close() error
}

// Store is the preference graph facade.
//
// Store never returns storage errors: failures are logged and surface as nil or empty results,
// since every caller already has a fallback for "no data".
type Store struct {
	backend Backend
	logger  *log.Logger
	now     func() time.Time

	mu       sync.Mutex
	snapshot *models.Snapshot
}

// New creates a Store over the given backend.
func New(backend Backend, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &Store{backend: backend, logger: logger, now: time.Now}
}

// GetOrCreateNode returns the node identified by externalID, or by (t, name) when externalID is empty,
// creating it with zeroed play stats when missing. An existing node is returned unchanged, even if name differs.
func (s *Store) GetOrCreateNode(ctx context.Context, t models.NodeType, name, externalID string, attrs models.Attributes) *models.Node {
	name = strings.TrimSpace(name)
	if existing := s.findNode(ctx, t, name, externalID); existing != nil {
		return existing
	}

	n := &models.Node{Type: t, Name: name, ExternalID: externalID, Attributes: attrs.Clone()}
	if err := s.backend.InsertNode(ctx, n); err != nil {
		// another writer may have created it between lookup and insert
		if existing := s.findNode(ctx, t, name, externalID); existing != nil {
			return existing
		}
		s.logger.Error("failed to create node", "type", t, "name", name, "error", err)
		return nil
	}

	s.InvalidateCache()
	return n
}

func (s *Store) findNode(ctx context.Context, t models.NodeType, name, externalID string) *models.Node {
	var (
		n   *models.Node
		err error
	)
	if externalID != "" {
		n, err = s.backend.FindNodeByExternalID(ctx, externalID)
	} else {
		n, err = s.backend.FindNodeByName(ctx, t, name)
	}

	if err != nil {
		if !errors.Is(err, shared.ErrNodeNotFound) {
			s.logger.Error("node lookup failed", "type", t, "name", name, "external_id", externalID, "error", err)
		}
		return nil
	}
	return n
}

// GetNode returns the node with id, or nil.
func (s *Store) GetNode(ctx context.Context, id string) *models.Node {
	n, err := s.backend.GetNode(ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrNodeNotFound) {
			s.logger.Error("failed to get node", "id", id, "error", err)
		}
		return nil
	}
	return n
}

// UpdateAttributes shallow-merges attrs into the node's attributes.
func (s *Store) UpdateAttributes(ctx context.Context, nodeID string, attrs models.Attributes) *models.Node {
	return s.mutate(ctx, nodeID, func(n *models.Node) {
		n.Attributes = n.Attributes.Merge(attrs)
	})
}

// Rename changes a node's name. This is the only path that renames; [Store.GetOrCreateNode] never does.
func (s *Store) Rename(ctx context.Context, nodeID, name string) *models.Node {
	name = strings.TrimSpace(name)
	if name == "" {
		s.logger.Warn("refusing to rename node to an empty name", "id", nodeID)
		return nil
	}
	return s.mutate(ctx, nodeID, func(n *models.Node) {
		n.Name = name
	})
}

// RecordPlay increments the node's play count and stamps it as played now.
func (s *Store) RecordPlay(ctx context.Context, nodeID string) *models.Node {
	return s.mutate(ctx, nodeID, func(n *models.Node) {
		n.PlayCount++
		n.LastPlayedAt = s.now()
	})
}

func (s *Store) mutate(ctx context.Context, nodeID string, fn func(n *models.Node)) *models.Node {
	n := s.GetNode(ctx, nodeID)
	if n == nil {
		return nil
	}

	fn(n)
	if err := s.backend.UpdateNode(ctx, n); err != nil {
		s.logger.Error("failed to update node", "id", nodeID, "error", err)
		return nil
	}

	s.InvalidateCache()
	return n
}

// Connect creates the (source, target, type) edge or reinforces it by [models.EdgeReinforcement].
// A non-positive weight means [models.DefaultEdgeWeight].
func (s *Store) Connect(ctx context.Context, source, target string, t models.EdgeType, weight float64) *models.Edge {
	if source == "" || target == "" {
		return nil
	}
	if weight <= 0 {
		weight = models.DefaultEdgeWeight
	}

	e, err := s.backend.UpsertEdge(ctx, models.Edge{Source: source, Target: target, Type: t, Weight: weight}, models.EdgeReinforcement)
	if err != nil {
		s.logger.Error("failed to connect nodes", "source", source, "target", target, "type", t, "error", err)
		return nil
	}

	s.InvalidateCache()
	return &e
}

// GetGraphSnapshot returns a copy of the cached snapshot, reading the backend when the cache is empty
// or forceRefresh is set.
func (s *Store) GetGraphSnapshot(ctx context.Context, forceRefresh bool) *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && !forceRefresh {
		return s.snapshot.Clone()
	}

	snap, err := s.backend.Snapshot(ctx)
	if err != nil {
		s.logger.Error("failed to read graph snapshot", "error", err)
		return &models.Snapshot{TakenAt: s.now()}
	}

	s.snapshot = snap
	return snap.Clone()
}

// InvalidateCache drops the cached snapshot. Every structural mutation calls it.
func (s *Store) InvalidateCache() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// Restore replaces the whole graph with snap.
func (s *Store) Restore(ctx context.Context, snap *models.Snapshot) bool {
	defer s.InvalidateCache()

	if err := s.backend.Restore(ctx, snap); err != nil {
		s.logger.Error("failed to restore graph", "error", err)
		return false
	}
	s.Sync(ctx)
	return true
}

// Clear removes every node and edge.
func (s *Store) Clear(ctx context.Context) bool {
	defer s.InvalidateCache()

	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Error("failed to clear graph", "error", err)
		return false
	}
	s.Sync(ctx)
	return true
}

// Sync flushes the backend to its external persistence.
func (s *Store) Sync(ctx context.Context) {
	if err := s.backend.Sync(ctx); err != nil {
		s.logger.Warn("failed to sync graph", "error", err)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Stats counts nodes and edges per type.
type Stats struct {
	Nodes map[models.NodeType]int `json:"nodes"`
	Edges map[models.EdgeType]int `json:"edges"`
}

// Stats counts nodes and edges per type from the current snapshot.
func (s *Store) Stats(ctx context.Context) Stats {
	snap := s.GetGraphSnapshot(ctx, false)
	st := Stats{Nodes: make(map[models.NodeType]int), Edges: make(map[models.EdgeType]int)}
	for _, n := range snap.Nodes {
		st.Nodes[n.Type]++
	}
	for _, e := range snap.Edges {
		st.Edges[e.Type]++
	}
	return st
}
