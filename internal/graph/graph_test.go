package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/repositories"
	"github.com/desertthunder/vibes/internal/shared"
)

// newTestStores returns a Store per backend.
func newTestStores(t *testing.T) map[string]*Store {
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

	stores := map[string]*Store{
		"SQLite": New(repositories.NewSQLiteGraph(db), nil),
		"Memory": New(repositories.NewMemoryGraph(nil, nil), nil),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func eachStore(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func song(t *testing.T, s *Store, name, artist, externalID string) *models.Node {
	t.Helper()
	n := s.GetOrCreateNode(context.Background(), models.NodeSong, name, externalID, models.Attributes{Artist: artist})
	if n == nil {
		t.Fatalf("failed to create song %q", name)
	}
	return n
}

func TestGetOrCreateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("external id identity", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			first := song(t, s, "X", "A", "e1")
			second := song(t, s, "X", "A", "e1")
			if first.ID != second.ID {
				t.Errorf("expected same id, got %s and %s", first.ID, second.ID)
			}

			other := song(t, s, "X", "A", "e2")
			if other.ID == first.ID {
				t.Error("different external id with the same name must be a different node")
			}
		})
	})

	t.Run("does not rename on external id hit", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			original := song(t, s, "Original Title", "A", "e1")
			again := song(t, s, "Noisy Relabel", "A", "e1")
			if again.ID != original.ID || again.Name != "Original Title" {
				t.Errorf("expected unchanged node, got %+v", again)
			}

			renamed := s.Rename(ctx, original.ID, "Corrected Title")
			if renamed == nil || renamed.Name != "Corrected Title" {
				t.Fatalf("explicit rename failed: %+v", renamed)
			}
		})
	})

	t.Run("type and name identity", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			g1 := s.GetOrCreateNode(ctx, models.NodeGenre, "jazz", "", models.Attributes{})
			g2 := s.GetOrCreateNode(ctx, models.NodeGenre, " jazz ", "", models.Attributes{})
			v := s.GetOrCreateNode(ctx, models.NodeVibe, "jazz", "", models.Attributes{})
			if g1.ID != g2.ID {
				t.Errorf("expected same genre node, got %s and %s", g1.ID, g2.ID)
			}
			if v.ID == g1.ID {
				t.Error("same name with a different type must be a different node")
			}
			if g1.PlayCount != 0 || !g1.LastPlayedAt.IsZero() {
				t.Errorf("new nodes start with zeroed play stats, got %+v", g1)
			}
		})
	})
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		a := song(t, s, "A", "x", "a")
		b := song(t, s, "B", "y", "b")

		s.Connect(ctx, a.ID, b.ID, models.EdgeSimilar, 1.0)
		e := s.Connect(ctx, a.ID, b.ID, models.EdgeSimilar, 1.0)
		if e == nil || e.Weight != 1.5 {
			t.Fatalf("expected reinforced weight 1.5, got %+v", e)
		}

		snap := s.GetGraphSnapshot(ctx, true)
		if len(snap.Edges) != 1 {
			t.Errorf("expected a single edge, got %d", len(snap.Edges))
		}

		if e := s.Connect(ctx, b.ID, a.ID, models.EdgeNext, 0); e == nil || e.Weight != models.DefaultEdgeWeight {
			t.Errorf("expected default weight for zero, got %+v", e)
		}

		if e := s.Connect(ctx, a.ID, "does-not-exist", models.EdgeSimilar, 1.0); e != nil {
			t.Errorf("expected nil edge to an unknown node, got %+v", e)
		}
		if snap := s.GetGraphSnapshot(ctx, true); len(snap.Edges) != 2 {
			t.Errorf("dangling edge must not be stored, got %d edges", len(snap.Edges))
		}
	})
}

func TestRecordPlayAndAttributes(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		n := song(t, s, "A", "x", "a")

		s.RecordPlay(ctx, n.ID)
		played := s.RecordPlay(ctx, n.ID)
		if played == nil || played.PlayCount != 2 {
			t.Fatalf("expected play count 2, got %+v", played)
		}
		if played.LastPlayedAt.IsZero() {
			t.Error("expected last played to be set")
		}

		merged := s.UpdateAttributes(ctx, n.ID, models.Attributes{
			Features: &models.AudioFeatures{Energy: 0.9},
			Extra:    map[string]string{"source": "test"},
		})
		if merged == nil {
			t.Fatal("expected merged node")
		}
		if merged.Attributes.Artist != "x" {
			t.Errorf("merge must keep existing keys, artist = %q", merged.Attributes.Artist)
		}
		if merged.Attributes.Features == nil || merged.Attributes.Features.Energy != 0.9 {
			t.Errorf("expected features to merge in, got %+v", merged.Attributes.Features)
		}

		if s.RecordPlay(ctx, "missing") != nil {
			t.Error("expected nil for missing node")
		}
	})
}

func TestGetNeighbors(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		seed := song(t, s, "Seed", "x", "seed")
		low := song(t, s, "Low", "y", "low")
		high := song(t, s, "High", "z", "high")

		s.Connect(ctx, seed.ID, low.ID, models.EdgeSimilar, 1)
		s.Connect(ctx, seed.ID, high.ID, models.EdgeSimilar, 3)

		neighbors := s.GetNeighbors(ctx, seed.ID, 10)
		if len(neighbors) != 2 {
			t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
		}
		if neighbors[0].Name != "High" || neighbors[0].Artist != "z" || neighbors[0].Weight != 3 {
			t.Errorf("unexpected first neighbor: %+v", neighbors[0])
		}

		if got := s.GetNeighbors(ctx, seed.ID, 1); len(got) != 1 {
			t.Errorf("expected limit to apply, got %d", len(got))
		}
	})
}

func TestGetNextSuggested(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.Local)
		s.now = func() time.Time { return now }

		seed := song(t, s, "Seed", "x", "seed")
		playedToday := song(t, s, "Today", "a", "today")
		fresh := song(t, s, "Fresh", "b", "fresh")
		stale := song(t, s, "Stale", "c", "stale")
		genre := s.GetOrCreateNode(ctx, models.NodeGenre, "rock", "", models.Attributes{})

		s.Connect(ctx, seed.ID, genre.ID, models.EdgeHasGenre, 10)
		s.Connect(ctx, seed.ID, playedToday.ID, models.EdgeNext, 5)
		s.Connect(ctx, seed.ID, fresh.ID, models.EdgeNext, 4)
		s.Connect(ctx, seed.ID, stale.ID, models.EdgeNext, 2)

		s.RecordPlay(ctx, playedToday.ID)

		s.now = func() time.Time { return now.Add(-48 * time.Hour) }
		s.RecordPlay(ctx, stale.ID)
		s.now = func() time.Time { return now }

		next := s.GetNextSuggested(ctx, seed.ID, nil)
		if next == nil || next.ID != fresh.ID {
			t.Fatalf("expected fresh song, got %+v", next)
		}

		next = s.GetNextSuggested(ctx, seed.ID, []string{"fresh"})
		if next == nil || next.ID != stale.ID {
			t.Fatalf("expected stale song after excluding by external id, got %+v", next)
		}

		if next := s.GetNextSuggested(ctx, seed.ID, []string{fresh.ID, stale.ID}); next != nil {
			t.Errorf("expected nil when everything is excluded, got %+v", next)
		}
	})

	t.Run("exclusions do not crowd out lighter edges", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			seed := song(t, s, "Seed", "x", "seed")
			var exclude []string
			for i := range 10 {
				n := song(t, s, fmt.Sprintf("Heavy %d", i), "h", fmt.Sprintf("heavy-%d", i))
				s.Connect(ctx, seed.ID, n.ID, models.EdgeNext, float64(20-i))
				exclude = append(exclude, n.ExternalID)
			}
			low := song(t, s, "Low", "l", "low")
			s.Connect(ctx, seed.ID, low.ID, models.EdgeNext, 1)

			next := s.GetNextSuggested(ctx, seed.ID, exclude)
			if next == nil || next.ID != low.ID {
				t.Fatalf("expected Low past ten excluded neighbors, got %+v", next)
			}
		})
	})
}

func TestGetClusterRepresentatives(t *testing.T) {
	ctx := context.Background()

	t.Run("artist diversity", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			artists := []string{"a", "a", "b", "b", "c", "d", "e", "e", "f"}
			for i, artist := range artists {
				n := song(t, s, fmt.Sprintf("song %d", i), artist, fmt.Sprintf("e%d", i))
				for range len(artists) - i {
					s.RecordPlay(ctx, n.ID)
				}
			}

			reps := s.GetClusterRepresentatives(ctx, 5)
			if len(reps) != 5 {
				t.Fatalf("expected 5 representatives, got %d", len(reps))
			}
			if reps[0].Name != "song 0" {
				t.Errorf("top played song must come first, got %s", reps[0].Name)
			}
			seen := make(map[string]bool)
			for _, r := range reps {
				if seen[r.Artist()] {
					t.Errorf("duplicate artist %q in representatives", r.Artist())
				}
				seen[r.Artist()] = true
			}
		})
	})

	t.Run("backfills when artists run out", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			for i, artist := range []string{"a", "a", "a", "b"} {
				song(t, s, fmt.Sprintf("song %d", i), artist, fmt.Sprintf("e%d", i))
			}

			reps := s.GetClusterRepresentatives(ctx, 3)
			if len(reps) != 3 {
				t.Fatalf("expected 3 representatives, got %d", len(reps))
			}
			if reps[1].Artist() != "b" {
				t.Errorf("distinct artist should be accepted before backfill, got %q", reps[1].Artist())
			}
		})
	})

	t.Run("empty graph", func(t *testing.T) {
		eachStore(t, func(t *testing.T, s *Store) {
			if reps := s.GetClusterRepresentatives(ctx, 5); len(reps) != 0 {
				t.Errorf("expected none, got %d", len(reps))
			}
		})
	})
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	high := &models.AudioFeatures{Energy: 0.9, Valence: 0.8, Danceability: 0.7}
	low := &models.AudioFeatures{Energy: 0.1, Valence: 0.2, Danceability: 0.1}
	songs := []models.SessionSong{
		{Name: "One", Artist: "A", ExternalID: "1", Visited: true, Genres: []string{"Indie Rock"}, Features: high},
		{Name: "Two", Artist: "A", ExternalID: "2", Visited: true, Genres: []string{"indie rock", "dream pop"}, Features: low},
		{Name: "Three", Artist: "B", ExternalID: "3", Visited: false, Features: high},
		{Name: "Four", Artist: "C", ExternalID: "4", Visited: true, Genres: []string{"dream pop"}, Features: high},
	}

	eachStore(t, func(t *testing.T, s *Store) {
		nodes := s.Ingest(ctx, songs)
		if len(nodes) != 4 {
			t.Fatalf("expected 4 nodes, got %d", len(nodes))
		}

		stats := s.Stats(ctx)
		if stats.Nodes[models.NodeSong] != 4 {
			t.Errorf("expected 4 songs, got %d", stats.Nodes[models.NodeSong])
		}
		if stats.Nodes[models.NodeArtist] != 3 {
			t.Errorf("expected 3 artists, got %d", stats.Nodes[models.NodeArtist])
		}
		if stats.Nodes[models.NodeGenre] != 2 {
			t.Errorf("expected genres to be case-folded into 2 nodes, got %d", stats.Nodes[models.NodeGenre])
		}
		if stats.Edges[models.EdgeSameArtist] != 1 {
			t.Errorf("expected 1 SAME_ARTIST edge, got %d", stats.Edges[models.EdgeSameArtist])
		}
		// visited chain: One -> Two -> Four
		if stats.Edges[models.EdgeNext] != 2 {
			t.Errorf("expected 2 NEXT edges, got %d", stats.Edges[models.EdgeNext])
		}
		// high bucket: One, Three, Four
		if stats.Edges[models.EdgeSimilar] != 2 {
			t.Errorf("expected a 2-edge SIMILAR chain, got %d", stats.Edges[models.EdgeSimilar])
		}
		if stats.Edges[models.EdgeHasFeature] != 12 {
			t.Errorf("expected 12 HAS_FEATURE edges, got %d", stats.Edges[models.EdgeHasFeature])
		}

		top := s.GetTopGenres(ctx, 10)
		if len(top) != 2 {
			t.Fatalf("expected 2 genres, got %d", len(top))
		}
		for _, g := range top {
			if g.SongCount != 2 || g.TotalWeight != 2 {
				t.Errorf("unexpected genre stat %+v", g)
			}
		}

		byGenre := s.GetSongsByGenres(ctx, []string{"Dream Pop", "indie rock"}, 10, []string{"4"})
		if len(byGenre) != 2 {
			t.Fatalf("expected 2 songs, got %d", len(byGenre))
		}
		if byGenre[0].Name != "Two" {
			t.Errorf("song in both genres should score highest, got %s", byGenre[0].Name)
		}
	})
}

func TestIngestLateAttributes(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		s.Ingest(ctx, []models.SessionSong{{Name: "One", Artist: "A", ExternalID: "1"}})
		s.Ingest(ctx, []models.SessionSong{{
			Name: "One", Artist: "A", ExternalID: "1",
			Features: &models.AudioFeatures{Energy: 0.5, Valence: 0.5, Danceability: 0.5},
		}})

		n := s.FindSong(ctx, "1", "", "")
		if n == nil || n.Attributes.Features == nil {
			t.Fatalf("expected late features to be merged, got %+v", n)
		}
		if stats := s.Stats(ctx); stats.Nodes[models.NodeSong] != 1 {
			t.Errorf("expected a single song node, got %d", stats.Nodes[models.NodeSong])
		}
	})
}

func TestCommitSession(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		vibe := s.CommitSession(ctx, "Late Night", []models.SessionSong{
			{Name: "One", Artist: "A", ExternalID: "1", Visited: true},
			{Name: "Two", Artist: "B", ExternalID: "2", Visited: false},
			{Name: "Three", Artist: "C", ExternalID: "3", Visited: true},
		})
		if vibe == nil {
			t.Fatal("expected vibe node")
		}
		if vibe.PlayCount != 1 {
			t.Errorf("vibe should be marked played, got %d", vibe.PlayCount)
		}

		stats := s.Stats(ctx)
		if stats.Edges[models.EdgeHasVibe] != 2 {
			t.Errorf("expected 2 HAS_VIBE edges, got %d", stats.Edges[models.EdgeHasVibe])
		}

		neighbors := s.GetNeighbors(ctx, vibe.ID, 0)
		if len(neighbors) != 2 {
			t.Errorf("vibe should link back to the visited songs, got %d", len(neighbors))
		}

		profile := s.GetTasteProfile(ctx)
		if len(profile.RecentVibes) != 1 || profile.RecentVibes[0] != "Late Night" {
			t.Errorf("expected recent vibe, got %v", profile.RecentVibes)
		}
	})
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		first := s.GetGraphSnapshot(ctx, false)
		if len(first.Nodes) != 0 {
			t.Fatalf("expected empty graph, got %d nodes", len(first.Nodes))
		}
		n := &models.Node{ID: "direct", Type: models.NodeSong, Name: "Direct", Attributes: models.Attributes{}}
		if err := s.backend.InsertNode(ctx, n); err != nil {
			t.Fatalf("failed to insert node: %v", err)
		}
		if got := s.GetGraphSnapshot(ctx, false); len(got.Nodes) != 0 {
			t.Errorf("expected cached snapshot to be reused, got %d nodes", len(got.Nodes))
		}
		if got := s.GetGraphSnapshot(ctx, true); len(got.Nodes) != 1 {
			t.Errorf("forceRefresh must reread the backend, got %d nodes", len(got.Nodes))
		}
		s.Clear(ctx)

		song(t, s, "A", "x", "a")
		cached := s.GetGraphSnapshot(ctx, false)
		cached.Nodes[0].Name = "mutated"
		cached.Nodes = append(cached.Nodes, &models.Node{ID: "extra"})
		if got := s.GetGraphSnapshot(ctx, false); len(got.Nodes) != 1 || got.Nodes[0].Name != "A" {
			t.Errorf("callers must not be able to corrupt the cache, got %+v", got.Nodes)
		}
		if got := s.GetGraphSnapshot(ctx, false); len(got.Nodes) != 1 {
			t.Errorf("node creation must invalidate the cache, got %d nodes", len(got.Nodes))
		}

		s.Ingest(ctx, []models.SessionSong{{Name: "B", Artist: "y", ExternalID: "b"}})
		if got := s.GetGraphSnapshot(ctx, false); len(got.Nodes) != 3 {
			t.Errorf("ingest must invalidate the cache, got %d nodes", len(got.Nodes))
		}

		s.Clear(ctx)
		if got := s.GetGraphSnapshot(ctx, false); len(got.Nodes) != 0 {
			t.Errorf("clear must invalidate the cache, got %d nodes", len(got.Nodes))
		}
	})
}

func TestTasteProfile(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s *Store) {
		s.Ingest(ctx, []models.SessionSong{
			{Name: "One", Artist: "A", ExternalID: "1", Features: &models.AudioFeatures{Energy: 1, Valence: 0, Danceability: 0.5}},
			{Name: "Two", Artist: "B", ExternalID: "2", Features: &models.AudioFeatures{Energy: 0, Valence: 1, Danceability: 0.5}},
			{Name: "Three", Artist: "C", ExternalID: "3"},
		})

		profile := s.GetTasteProfile(ctx)
		if profile.AudioProfile == nil {
			t.Fatal("expected audio profile")
		}
		if profile.AudioProfile.Energy != 0.5 || profile.AudioProfile.Valence != 0.5 || profile.AudioProfile.Danceability != 0.5 {
			t.Errorf("unexpected audio profile %+v", profile.AudioProfile)
		}
		if len(profile.ClusterReps) != 3 {
			t.Errorf("expected 3 cluster reps, got %d", len(profile.ClusterReps))
		}
	})
}

func TestClusterBucket(t *testing.T) {
	tests := []struct {
		features models.AudioFeatures
		expected int
	}{
		{models.AudioFeatures{Energy: 0, Valence: 0, Danceability: 0}, 0},
		{models.AudioFeatures{Energy: 0.32, Valence: 0.33, Danceability: 0.66}, 5},
		{models.AudioFeatures{Energy: 1, Valence: 1, Danceability: 1}, 26},
	}

	for _, tt := range tests {
		if got := ClusterBucket(&tt.features); got != tt.expected {
			t.Errorf("ClusterBucket(%+v) = %d, want %d", tt.features, got, tt.expected)
		}
	}
}
