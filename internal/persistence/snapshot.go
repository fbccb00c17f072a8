package persistence

import (
	"context"

	"github.com/desertthunder/vibes/internal/models"
)

// DefaultSnapshotKey is where graph snapshots are stored when no key is configured.
const DefaultSnapshotKey = "graph:snapshot"

// SnapshotStore saves whole-graph snapshots under a single key.
type SnapshotStore struct {
	kv  KV
	key string
}

// NewSnapshotStore stores snapshots in kv under key, or [DefaultSnapshotKey] when key is empty.
func NewSnapshotStore(kv KV, key string) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{kv: kv, key: key}
}

// SaveSnapshot overwrites the stored snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	return setJSON(ctx, s.kv, s.key, snap)
}

// LoadSnapshot returns (nil, nil) when no snapshot has been saved.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	found, err := getJSON(ctx, s.kv, s.key, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}
