// package persistence implements the key/value persistence port and the listening history built on it
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/desertthunder/vibes/internal/shared"
)

// KV is a byte-oriented key/value store. Get returns [shared.ErrKeyNotFound] for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open returns the KV driver selected by cfg.
func Open(cfg shared.StorageConfig) (KV, error) {
	switch cfg.Driver {
	case shared.StorageDriverBadger:
		return OpenBadger(cfg.Path)
	case shared.StorageDriverFile:
		return OpenFile(cfg.Path)
	case shared.StorageDriverMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}

// getJSON decodes the value at key into v. found is false for missing keys.
func getJSON(ctx context.Context, kv KV, key string, v any) (found bool, err error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, shared.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
