package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// eachKV runs fn once per KV driver.
func eachKV(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Helper()

	t.Run("Badger", func(t *testing.T) {
		kv, err := OpenBadger("")
		if err != nil {
			t.Fatalf("failed to open badger: %v", err)
		}
		defer kv.Close()
		fn(t, kv)
	})

	t.Run("File", func(t *testing.T) {
		kv, err := OpenFile(filepath.Join(t.TempDir(), "store.json"))
		if err != nil {
			t.Fatalf("failed to open file store: %v", err)
		}
		defer kv.Close()
		fn(t, kv)
	})

	t.Run("Memory", func(t *testing.T) {
		kv := NewMemoryKV()
		defer kv.Close()
		fn(t, kv)
	})
}

func TestKV(t *testing.T) {
	ctx := context.Background()

	t.Run("Get Set Delete", func(t *testing.T) {
		eachKV(t, func(t *testing.T, kv KV) {
			if _, err := kv.Get(ctx, "missing"); !errors.Is(err, shared.ErrKeyNotFound) {
				t.Errorf("expected ErrKeyNotFound, got %v", err)
			}

			if err := kv.Set(ctx, "a", []byte(`{"x":1}`)); err != nil {
				t.Fatalf("failed to set: %v", err)
			}
			got, err := kv.Get(ctx, "a")
			if err != nil {
				t.Fatalf("failed to get: %v", err)
			}
			if string(got) != `{"x":1}` {
				t.Errorf("unexpected value %s", got)
			}

			if err := kv.Delete(ctx, "a"); err != nil {
				t.Fatalf("failed to delete: %v", err)
			}
			if _, err := kv.Get(ctx, "a"); !errors.Is(err, shared.ErrKeyNotFound) {
				t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
			}
		})
	})

	t.Run("Keys by prefix", func(t *testing.T) {
		eachKV(t, func(t *testing.T, kv KV) {
			for _, k := range []string{"stats:b", "stats:a", "played:2026-01-01"} {
				if err := kv.Set(ctx, k, []byte(`1`)); err != nil {
					t.Fatalf("failed to set %s: %v", k, err)
				}
			}

			keys, err := kv.Keys(ctx, "stats:")
			if err != nil {
				t.Fatalf("failed to list keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "stats:a" || keys[1] != "stats:b" {
				t.Errorf("unexpected keys %v", keys)
			}
		})
	})
}

func TestFileKV(t *testing.T) {
	ctx := context.Background()

	t.Run("survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "store.json")
		kv, err := OpenFile(path)
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		if err := kv.Set(ctx, "k", []byte(`"v"`)); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		reopened, err := OpenFile(path)
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		got, err := reopened.Get(ctx, "k")
		if err != nil || string(got) != `"v"` {
			t.Errorf("expected persisted value, got %s (%v)", got, err)
		}
	})

	t.Run("rejects non JSON values", func(t *testing.T) {
		kv, _ := OpenFile(filepath.Join(t.TempDir(), "store.json"))
		if err := kv.Set(ctx, "k", []byte("not json")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     shared.StorageConfig
		wantErr bool
	}{
		{"memory", shared.StorageConfig{Driver: shared.StorageDriverMemory}, false},
		{"file", shared.StorageConfig{Driver: shared.StorageDriverFile, Path: filepath.Join(t.TempDir(), "kv.json")}, false},
		{"badger", shared.StorageConfig{Driver: shared.StorageDriverBadger, Path: t.TempDir()}, false},
		{"unknown", shared.StorageConfig{Driver: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := Open(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			kv.Close()
		})
	}
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(NewMemoryKV(), "")

	snap, err := store.LoadSnapshot(ctx)
	if err != nil || snap != nil {
		t.Fatalf("expected (nil, nil) before first save, got %v, %v", snap, err)
	}

	saved := &models.Snapshot{
		Nodes: []*models.Node{{ID: "n1", Type: models.NodeSong, Name: "A", ExternalID: "a", PlayCount: 2}},
		Edges: []models.Edge{{Source: "n1", Target: "n1", Type: models.EdgeSimilar, Weight: 1.5}},
	}
	if err := store.SaveSnapshot(ctx, saved); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(loaded.Nodes) != 1 || loaded.Nodes[0].PlayCount != 2 || loaded.Edges[0].Weight != 1.5 {
		t.Errorf("unexpected snapshot %+v", loaded)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.Local)

	newHistory := func() *History {
		h := NewHistory(NewMemoryKV(), nil)
		h.now = func() time.Time { return now }
		return h
	}

	t.Run("RecordPlay And PlayedToday", func(t *testing.T) {
		h := newHistory()
		tracks := []models.PlayedTrack{
			{Title: "Creep", Artist: "Radiohead", ExternalID: "spotify:track:1"},
			{Title: "Karma Police", Artist: "Radiohead", ExternalID: "spotify:track:2"},
		}
		for _, tr := range tracks {
			if err := h.RecordPlay(ctx, PlayEvent{Track: tr}); err != nil {
				t.Fatalf("failed to record play: %v", err)
			}
		}
		if err := h.RecordPlay(ctx, PlayEvent{Track: tracks[0]}); err != nil {
			t.Fatalf("failed to record replay: %v", err)
		}

		keys, ids, err := h.PlayedToday(ctx)
		if err != nil {
			t.Fatalf("failed to read played today: %v", err)
		}
		if len(keys) != 2 || keys[0] != "Creep - Radiohead" {
			t.Errorf("unexpected keys %v", keys)
		}
		if len(ids) != 2 {
			t.Errorf("unexpected ids %v", ids)
		}

		if session := h.SessionHistory(); len(session) != 3 {
			t.Errorf("session history keeps every play, got %v", session)
		}
	})

	t.Run("yesterday is not today", func(t *testing.T) {
		h := newHistory()
		ev := PlayEvent{Track: models.PlayedTrack{Title: "Old", Artist: "A"}, PlayedAt: now.Add(-24 * time.Hour)}
		if err := h.RecordPlay(ctx, ev); err != nil {
			t.Fatalf("failed to record play: %v", err)
		}
		keys, _, _ := h.PlayedToday(ctx)
		if len(keys) != 0 {
			t.Errorf("expected nothing played today, got %v", keys)
		}
	})

	t.Run("RecordPlay requires a title", func(t *testing.T) {
		h := newHistory()
		if err := h.RecordPlay(ctx, PlayEvent{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Favorites And Feedback", func(t *testing.T) {
		h := newHistory()
		play := func(title string, n int, skipped bool) {
			for range n {
				ev := PlayEvent{Track: models.PlayedTrack{Title: title, Artist: "A", ExternalID: "id:" + title}, Skipped: skipped}
				if err := h.RecordPlay(ctx, ev); err != nil {
					t.Fatalf("failed to record play: %v", err)
				}
			}
		}
		play("Often", 3, false)
		play("Sometimes", 1, false)
		play("Skipped", 2, true)
		play("Hated", 5, false)

		if err := h.SubmitFeedback(ctx, "Hated - A", "dislike"); err != nil {
			t.Fatalf("failed to submit dislike: %v", err)
		}
		if err := h.SubmitFeedback(ctx, "Skipped - A", "LIKE"); err != nil {
			t.Fatalf("failed to submit like: %v", err)
		}

		favorites, err := h.Favorites(ctx, 10)
		if err != nil {
			t.Fatalf("failed to read favorites: %v", err)
		}
		if len(favorites) != 3 {
			t.Fatalf("expected 3 favorites, got %+v", favorites)
		}
		if favorites[0].Title != "Skipped" || !favorites[0].Liked {
			t.Errorf("liked track should rank first, got %+v", favorites[0])
		}
		if favorites[1].Title != "Often" || favorites[1].PlayCount != 3 {
			t.Errorf("unexpected second favorite %+v", favorites[1])
		}

		excluded, err := h.PermanentExclusions(ctx)
		if err != nil {
			t.Fatalf("failed to read exclusions: %v", err)
		}
		if len(excluded) != 1 || excluded[0] != "Hated - A" {
			t.Errorf("unexpected exclusions %v", excluded)
		}

		skips, _ := h.RecentSkips(ctx, 1)
		if len(skips) != 1 || skips[0].Title != "Skipped" {
			t.Errorf("unexpected skips %v", skips)
		}
	})

	t.Run("SubmitFeedback validates input", func(t *testing.T) {
		h := newHistory()
		if err := h.SubmitFeedback(ctx, "A - B", "meh"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := h.SubmitFeedback(ctx, " ", "like"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Preferences", func(t *testing.T) {
		h := newHistory()
		if _, found, err := h.Preference(ctx, "vibe"); found || err != nil {
			t.Fatalf("expected missing preference, got found=%v err=%v", found, err)
		}
		if err := h.SetPreference(ctx, "vibe", "late night"); err != nil {
			t.Fatalf("failed to set preference: %v", err)
		}
		v, found, err := h.Preference(ctx, "vibe")
		if err != nil || !found || v != "late night" {
			t.Errorf("expected stored preference, got %q %v %v", v, found, err)
		}
	})
}
