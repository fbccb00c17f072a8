package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// MemoryGraph is the in-memory graph backend.
//
// Lookups by external id and by (type, name) are O(1). Durability comes from the optional
// [SnapshotPersister]: [MemoryGraph.Load] restores at startup and [MemoryGraph.Sync] saves.
type MemoryGraph struct {
	mu sync.RWMutex
	memoryState

	persister SnapshotPersister
	logger    *log.Logger
}

type memoryState struct {
	nodes     map[string]*models.Node
	order     []string
	byExtID   map[string]string
	byName    map[nameKey]string
	edges     map[models.EdgeKey]*models.Edge
	edgeOrder []models.EdgeKey
	outgoing  map[string][]models.EdgeKey
}

type nameKey struct {
	t    models.NodeType
	name string
}

// NewMemoryGraph creates an empty MemoryGraph. persister may be nil for a purely volatile graph.
func NewMemoryGraph(persister SnapshotPersister, logger *log.Logger) *MemoryGraph {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	g := &MemoryGraph{persister: persister, logger: logger}
	g.reset()
	return g
}

func (g *MemoryGraph) reset() {
	g.memoryState = memoryState{
		nodes:    make(map[string]*models.Node),
		byExtID:  make(map[string]string),
		byName:   make(map[nameKey]string),
		edges:    make(map[models.EdgeKey]*models.Edge),
		outgoing: make(map[string][]models.EdgeKey),
	}
}

// Load restores the last saved snapshot, if any.
func (g *MemoryGraph) Load(ctx context.Context) error {
	if g.persister == nil {
		return nil
	}

	snap, err := g.persister.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load graph snapshot: %w", err)
	}
	if snap == nil {
		g.logger.Debug("no graph snapshot to restore")
		return nil
	}

	g.logger.Info("restoring graph snapshot", "nodes", len(snap.Nodes), "edges", len(snap.Edges), "taken_at", snap.TakenAt)
	return g.Restore(ctx, snap)
}

func (g *MemoryGraph) FindNodeByExternalID(ctx context.Context, externalID string) (*models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byExtID[externalID]
	if !ok {
		return nil, shared.ErrNodeNotFound
	}
	return g.nodes[id].Clone(), nil
}

func (g *MemoryGraph) FindNodeByName(ctx context.Context, t models.NodeType, name string) (*models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byName[nameKey{t, name}]
	if !ok {
		return nil, shared.ErrNodeNotFound
	}
	return g.nodes[id].Clone(), nil
}

func (g *MemoryGraph) GetNode(ctx context.Context, id string) (*models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, shared.ErrNodeNotFound
	}
	return n.Clone(), nil
}

func (g *MemoryGraph) InsertNode(ctx context.Context, n *models.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.ID == "" {
		n.ID = shared.GenerateID()
	}
	return g.insertLocked(n.Clone())
}

func (g *MemoryGraph) insertLocked(n *models.Node) error {
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: node %s already exists", shared.ErrInvalidInput, n.ID)
	}
	if n.ExternalID != "" {
		if _, exists := g.byExtID[n.ExternalID]; exists {
			return fmt.Errorf("%w: external id %s already exists", shared.ErrInvalidInput, n.ExternalID)
		}
		g.byExtID[n.ExternalID] = n.ID
	} else {
		key := nameKey{n.Type, n.Name}
		if _, exists := g.byName[key]; exists {
			return fmt.Errorf("%w: %s %q already exists", shared.ErrInvalidInput, n.Type, n.Name)
		}
		g.byName[key] = n.ID
	}

	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

func (g *MemoryGraph) UpdateNode(ctx context.Context, n *models.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[n.ID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNodeNotFound, n.ID)
	}

	if existing.ExternalID == "" && existing.Name != n.Name {
		newKey := nameKey{existing.Type, n.Name}
		if _, taken := g.byName[newKey]; taken {
			return fmt.Errorf("%w: %s %q already exists", shared.ErrInvalidInput, existing.Type, n.Name)
		}
		delete(g.byName, nameKey{existing.Type, existing.Name})
		g.byName[newKey] = n.ID
	}

	updated := n.Clone()
	updated.Type = existing.Type
	updated.ExternalID = existing.ExternalID
	g.nodes[n.ID] = updated
	return nil
}

func (g *MemoryGraph) UpsertEdge(ctx context.Context, e models.Edge, increment float64) (models.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[e.Source]; !ok {
		return models.Edge{}, fmt.Errorf("%w: source %s", shared.ErrNodeNotFound, e.Source)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return models.Edge{}, fmt.Errorf("%w: target %s", shared.ErrNodeNotFound, e.Target)
	}

	key := e.Key()
	if existing, ok := g.edges[key]; ok {
		existing.Weight += increment
		return *existing, nil
	}

	stored := e
	g.edges[key] = &stored
	g.edgeOrder = append(g.edgeOrder, key)
	g.outgoing[e.Source] = append(g.outgoing[e.Source], key)
	return stored, nil
}

func (g *MemoryGraph) OutgoingEdges(ctx context.Context, nodeID string) ([]models.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := g.outgoing[nodeID]
	edges := make([]models.Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, *g.edges[k])
	}
	return edges, nil
}

func (g *MemoryGraph) EdgesByType(ctx context.Context, t models.EdgeType) ([]models.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []models.Edge
	for _, k := range g.edgeOrder {
		if k.Type == t {
			edges = append(edges, *g.edges[k])
		}
	}
	return edges, nil
}

func (g *MemoryGraph) NodesByType(ctx context.Context, t models.NodeType) ([]*models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var nodes []*models.Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Type == t {
			nodes = append(nodes, n.Clone())
		}
	}
	return nodes, nil
}

func (g *MemoryGraph) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &models.Snapshot{
		Nodes:   make([]*models.Node, 0, len(g.order)),
		Edges:   make([]models.Edge, 0, len(g.edgeOrder)),
		TakenAt: time.Now(),
	}
	for _, id := range g.order {
		snap.Nodes = append(snap.Nodes, g.nodes[id].Clone())
	}
	for _, k := range g.edgeOrder {
		snap.Edges = append(snap.Edges, *g.edges[k])
	}
	return snap, nil
}

// Restore replaces the graph with snap. On error the previous contents are kept.
func (g *MemoryGraph) Restore(ctx context.Context, snap *models.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.memoryState
	g.reset()

	for _, n := range snap.Nodes {
		if err := g.insertLocked(n.Clone()); err != nil {
			g.memoryState = prev
			return fmt.Errorf("failed to restore node: %w", err)
		}
	}
	for _, e := range snap.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			g.memoryState = prev
			return fmt.Errorf("failed to restore edge: %w: %s", shared.ErrNodeNotFound, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			g.memoryState = prev
			return fmt.Errorf("failed to restore edge: %w: %s", shared.ErrNodeNotFound, e.Target)
		}
		key := e.Key()
		if existing, ok := g.edges[key]; ok {
			existing.Weight = e.Weight
			continue
		}
		stored := e
		g.edges[key] = &stored
		g.edgeOrder = append(g.edgeOrder, key)
		g.outgoing[e.Source] = append(g.outgoing[e.Source], key)
	}
	return nil
}

func (g *MemoryGraph) Clear(ctx context.Context) error {
	g.mu.Lock()
	g.reset()
	g.mu.Unlock()
	return nil
}

// Sync saves a snapshot through the persister.
func (g *MemoryGraph) Sync(ctx context.Context) error {
	if g.persister == nil {
		return nil
	}

	snap, err := g.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := g.persister.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save graph snapshot: %w", err)
	}

	g.logger.Debug("graph snapshot saved", "nodes", len(snap.Nodes), "edges", len(snap.Edges))
	return nil
}

// Close syncs the graph one last time.
func (g *MemoryGraph) Close() error {
	return g.Sync(context.Background())
}
