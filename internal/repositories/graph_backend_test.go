package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// backend is the storage port both graph backends satisfy.
type backend interface {
	FindNodeByExternalID(ctx context.Context, externalID string) (*models.Node, error)
	FindNodeByName(ctx context.Context, t models.NodeType, name string) (*models.Node, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	InsertNode(ctx context.Context, n *models.Node) error
	UpdateNode(ctx context.Context, n *models.Node) error
	UpsertEdge(ctx context.Context, e models.Edge, increment float64) (models.Edge, error)
	OutgoingEdges(ctx context.Context, nodeID string) ([]models.Edge, error)
	EdgesByType(ctx context.Context, t models.EdgeType) ([]models.Edge, error)
	NodesByType(ctx context.Context, t models.NodeType) ([]*models.Node, error)
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	Restore(ctx context.Context, snap *models.Snapshot) error
	Clear(ctx context.Context) error
	Sync(ctx context.Context) error
	Close() error
}

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// eachBackend runs fn once per backend implementation.
func eachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Helper()

	t.Run("SQLite", func(t *testing.T) {
		b := NewSQLiteGraph(setupTestDB(t))
		defer b.Close()
		fn(t, b)
	})

	t.Run("Memory", func(t *testing.T) {
		b := NewMemoryGraph(nil, nil)
		defer b.Close()
		fn(t, b)
	})
}

func insert(t *testing.T, b backend, n *models.Node) *models.Node {
	t.Helper()
	if err := b.InsertNode(context.Background(), n); err != nil {
		t.Fatalf("failed to insert node %q: %v", n.Name, err)
	}
	return n
}

func TestGraphBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("InsertNode And GetNode", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			n := insert(t, b, &models.Node{
				Type:       models.NodeSong,
				Name:       "Creep",
				ExternalID: "spotify:track:1",
				Attributes: models.Attributes{
					Artist:   "Radiohead",
					Genres:   []string{"alternative rock"},
					Features: &models.AudioFeatures{Energy: 0.4, Valence: 0.1, Danceability: 0.5},
				},
				Position: &models.Position{X: 1.5, Y: -2},
			})

			if n.ID == "" {
				t.Fatal("node ID should be set after insert")
			}

			got, err := b.GetNode(ctx, n.ID)
			if err != nil {
				t.Fatalf("failed to get node: %v", err)
			}
			if got.Name != "Creep" || got.ExternalID != "spotify:track:1" || got.Type != models.NodeSong {
				t.Errorf("unexpected node: %+v", got)
			}
			if got.Attributes.Artist != "Radiohead" {
				t.Errorf("expected artist Radiohead, got %q", got.Attributes.Artist)
			}
			if got.Attributes.Features == nil || got.Attributes.Features.Energy != 0.4 {
				t.Errorf("expected audio features to round-trip, got %+v", got.Attributes.Features)
			}
			if got.Position == nil || got.Position.X != 1.5 {
				t.Errorf("expected position to round-trip, got %+v", got.Position)
			}
			if !got.LastPlayedAt.IsZero() {
				t.Errorf("expected zero last played, got %v", got.LastPlayedAt)
			}
		})
	})

	t.Run("GetNode missing", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			_, err := b.GetNode(ctx, "missing")
			if !errors.Is(err, shared.ErrNodeNotFound) {
				t.Errorf("expected ErrNodeNotFound, got %v", err)
			}
		})
	})

	t.Run("Identity lookups", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			song := insert(t, b, &models.Node{Type: models.NodeSong, Name: "Intro", ExternalID: "e1"})
			genre := insert(t, b, &models.Node{Type: models.NodeGenre, Name: "shoegaze"})

			byExt, err := b.FindNodeByExternalID(ctx, "e1")
			if err != nil {
				t.Fatalf("FindNodeByExternalID failed: %v", err)
			}
			if byExt.ID != song.ID {
				t.Errorf("expected %s, got %s", song.ID, byExt.ID)
			}

			byName, err := b.FindNodeByName(ctx, models.NodeGenre, "shoegaze")
			if err != nil {
				t.Fatalf("FindNodeByName failed: %v", err)
			}
			if byName.ID != genre.ID {
				t.Errorf("expected %s, got %s", genre.ID, byName.ID)
			}

			if _, err := b.FindNodeByName(ctx, models.NodeSong, "Intro"); !errors.Is(err, shared.ErrNodeNotFound) {
				t.Errorf("nodes with an external id must not match by name, got %v", err)
			}
			if _, err := b.FindNodeByName(ctx, models.NodeVibe, "shoegaze"); !errors.Is(err, shared.ErrNodeNotFound) {
				t.Errorf("name lookup must be scoped by type, got %v", err)
			}
		})
	})

	t.Run("Duplicate identity rejected", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			insert(t, b, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "e1"})
			if err := b.InsertNode(ctx, &models.Node{Type: models.NodeSong, Name: "B", ExternalID: "e1"}); err == nil {
				t.Error("expected duplicate external id to be rejected")
			}

			insert(t, b, &models.Node{Type: models.NodeGenre, Name: "pop"})
			if err := b.InsertNode(ctx, &models.Node{Type: models.NodeGenre, Name: "pop"}); err == nil {
				t.Error("expected duplicate (type, name) to be rejected")
			}

			// same title, different recordings
			insert(t, b, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "e2"})
		})
	})

	t.Run("UpdateNode", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			n := insert(t, b, &models.Node{Type: models.NodeVibe, Name: "late night"})

			played := time.Now().Add(-time.Hour)
			n.PlayCount = 3
			n.LastPlayedAt = played
			n.Attributes.Description = "slow and warm"
			if err := b.UpdateNode(ctx, n); err != nil {
				t.Fatalf("failed to update node: %v", err)
			}

			got, err := b.GetNode(ctx, n.ID)
			if err != nil {
				t.Fatalf("failed to get node: %v", err)
			}
			if got.PlayCount != 3 {
				t.Errorf("expected play count 3, got %d", got.PlayCount)
			}
			if !got.LastPlayedAt.Equal(played) {
				t.Errorf("expected last played %v, got %v", played, got.LastPlayedAt)
			}
			if got.Attributes.Description != "slow and warm" {
				t.Errorf("expected description to persist, got %q", got.Attributes.Description)
			}

			n.Name = "after hours"
			if err := b.UpdateNode(ctx, n); err != nil {
				t.Fatalf("failed to rename node: %v", err)
			}
			if _, err := b.FindNodeByName(ctx, models.NodeVibe, "after hours"); err != nil {
				t.Errorf("renamed node should be found under its new name: %v", err)
			}
			if _, err := b.FindNodeByName(ctx, models.NodeVibe, "late night"); !errors.Is(err, shared.ErrNodeNotFound) {
				t.Errorf("old name should no longer resolve, got %v", err)
			}

			missing := &models.Node{ID: "missing", Type: models.NodeVibe, Name: "x"}
			if err := b.UpdateNode(ctx, missing); !errors.Is(err, shared.ErrNodeNotFound) {
				t.Errorf("expected ErrNodeNotFound, got %v", err)
			}
		})
	})

	t.Run("UpsertEdge reinforces", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			a := insert(t, b, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "a"})
			c := insert(t, b, &models.Node{Type: models.NodeSong, Name: "B", ExternalID: "b"})

			e := models.Edge{Source: a.ID, Target: c.ID, Type: models.EdgeSimilar, Weight: 1.0}
			first, err := b.UpsertEdge(ctx, e, models.EdgeReinforcement)
			if err != nil {
				t.Fatalf("failed to insert edge: %v", err)
			}
			if first.Weight != 1.0 {
				t.Errorf("expected weight 1.0, got %v", first.Weight)
			}

			second, err := b.UpsertEdge(ctx, e, models.EdgeReinforcement)
			if err != nil {
				t.Fatalf("failed to reinforce edge: %v", err)
			}
			if second.Weight != 1.5 {
				t.Errorf("expected weight 1.5, got %v", second.Weight)
			}

			// a different type is a different edge
			if _, err := b.UpsertEdge(ctx, models.Edge{Source: a.ID, Target: c.ID, Type: models.EdgeNext, Weight: 1}, models.EdgeReinforcement); err != nil {
				t.Fatalf("failed to insert NEXT edge: %v", err)
			}

			edges, err := b.OutgoingEdges(ctx, a.ID)
			if err != nil {
				t.Fatalf("failed to list edges: %v", err)
			}
			if len(edges) != 2 {
				t.Fatalf("expected 2 edges, got %d", len(edges))
			}
			if edges[0].Type != models.EdgeSimilar || edges[0].Weight != 1.5 {
				t.Errorf("unexpected first edge: %+v", edges[0])
			}

			similar, err := b.EdgesByType(ctx, models.EdgeSimilar)
			if err != nil {
				t.Fatalf("failed to list edges by type: %v", err)
			}
			if len(similar) != 1 {
				t.Errorf("expected 1 SIMILAR edge, got %d", len(similar))
			}
		})
	})

	t.Run("UpsertEdge rejects unknown nodes", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			a := insert(t, b, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "a"})

			for _, e := range []models.Edge{
				{Source: a.ID, Target: "does-not-exist", Type: models.EdgeSimilar, Weight: 1},
				{Source: "does-not-exist", Target: a.ID, Type: models.EdgeNext, Weight: 1},
			} {
				if _, err := b.UpsertEdge(ctx, e, models.EdgeReinforcement); !errors.Is(err, shared.ErrNodeNotFound) {
					t.Errorf("expected ErrNodeNotFound for %s -> %s, got %v", e.Source, e.Target, err)
				}
			}

			snap, err := b.Snapshot(ctx)
			if err != nil {
				t.Fatalf("failed to snapshot: %v", err)
			}
			if len(snap.Edges) != 0 {
				t.Errorf("expected no edges stored, got %d", len(snap.Edges))
			}
		})
	})

	t.Run("NodesByType keeps insertion order", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			for _, name := range []string{"c", "a", "b"} {
				insert(t, b, &models.Node{Type: models.NodeGenre, Name: name})
			}
			insert(t, b, &models.Node{Type: models.NodeVibe, Name: "v"})

			genres, err := b.NodesByType(ctx, models.NodeGenre)
			if err != nil {
				t.Fatalf("failed to list nodes: %v", err)
			}
			if len(genres) != 3 {
				t.Fatalf("expected 3 genres, got %d", len(genres))
			}
			for i, want := range []string{"c", "a", "b"} {
				if genres[i].Name != want {
					t.Errorf("position %d: expected %s, got %s", i, want, genres[i].Name)
				}
			}
		})
	})

	t.Run("Snapshot Restore And Clear", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			a := insert(t, b, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "a"})
			g := insert(t, b, &models.Node{Type: models.NodeGenre, Name: "jazz"})
			if _, err := b.UpsertEdge(ctx, models.Edge{Source: a.ID, Target: g.ID, Type: models.EdgeHasGenre, Weight: 2}, models.EdgeReinforcement); err != nil {
				t.Fatalf("failed to insert edge: %v", err)
			}

			snap, err := b.Snapshot(ctx)
			if err != nil {
				t.Fatalf("failed to snapshot: %v", err)
			}
			if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
				t.Fatalf("expected 2 nodes and 1 edge, got %d and %d", len(snap.Nodes), len(snap.Edges))
			}

			if err := b.Clear(ctx); err != nil {
				t.Fatalf("failed to clear: %v", err)
			}
			empty, _ := b.Snapshot(ctx)
			if len(empty.Nodes) != 0 || len(empty.Edges) != 0 {
				t.Errorf("expected empty graph after clear, got %d nodes", len(empty.Nodes))
			}

			if err := b.Restore(ctx, snap); err != nil {
				t.Fatalf("failed to restore: %v", err)
			}
			got, err := b.FindNodeByExternalID(ctx, "a")
			if err != nil {
				t.Fatalf("restored node missing: %v", err)
			}
			if got.ID != a.ID {
				t.Errorf("restore should preserve ids: expected %s, got %s", a.ID, got.ID)
			}
			edges, _ := b.OutgoingEdges(ctx, a.ID)
			if len(edges) != 1 || edges[0].Weight != 2 {
				t.Errorf("expected restored edge with weight 2, got %+v", edges)
			}

			// inserts after restore must not collide with restored sequence numbers
			insert(t, b, &models.Node{Type: models.NodeGenre, Name: "blues"})
			genres, _ := b.NodesByType(ctx, models.NodeGenre)
			if len(genres) != 2 || genres[1].Name != "blues" {
				t.Errorf("expected blues after jazz, got %+v", genres)
			}
		})
	})
}

type memoryPersister struct {
	saved *models.Snapshot
	saves int
}

func (p *memoryPersister) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	p.saved = snap
	p.saves++
	return nil
}

func (p *memoryPersister) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	return p.saved, nil
}

func TestMemoryGraphPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("Sync And Load", func(t *testing.T) {
		persister := &memoryPersister{}
		g := NewMemoryGraph(persister, nil)
		insert(t, g, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "a"})

		if err := g.Sync(ctx); err != nil {
			t.Fatalf("failed to sync: %v", err)
		}
		if persister.saves != 1 {
			t.Errorf("expected 1 save, got %d", persister.saves)
		}

		reloaded := NewMemoryGraph(persister, nil)
		if err := reloaded.Load(ctx); err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if _, err := reloaded.FindNodeByExternalID(ctx, "a"); err != nil {
			t.Errorf("expected node to survive reload: %v", err)
		}
	})

	t.Run("Load with nothing saved", func(t *testing.T) {
		g := NewMemoryGraph(&memoryPersister{}, nil)
		if err := g.Load(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Restore keeps contents on bad snapshot", func(t *testing.T) {
		eachBackend(t, func(t *testing.T, b backend) {
			insert(t, b, &models.Node{Type: models.NodeGenre, Name: "kept"})

			bad := &models.Snapshot{
				Nodes: []*models.Node{{ID: "n1", Type: models.NodeGenre, Name: "x"}},
				Edges: []models.Edge{{Source: "n1", Target: "ghost", Type: models.EdgeRelated, Weight: 1}},
			}
			if err := b.Restore(ctx, bad); err == nil {
				t.Fatal("expected error for dangling edge")
			}
			if _, err := b.FindNodeByName(ctx, models.NodeGenre, "kept"); err != nil {
				t.Errorf("previous contents should survive failed restore: %v", err)
			}
		})
	})

	t.Run("Returned nodes are copies", func(t *testing.T) {
		g := NewMemoryGraph(nil, nil)
		n := insert(t, g, &models.Node{Type: models.NodeSong, Name: "A", ExternalID: "a"})

		got, _ := g.GetNode(ctx, n.ID)
		got.PlayCount = 99
		again, _ := g.GetNode(ctx, n.ID)
		if again.PlayCount != 0 {
			t.Errorf("mutating a returned node must not affect the store, got %d", again.PlayCount)
		}
	})
}
