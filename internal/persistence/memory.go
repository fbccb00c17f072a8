package persistence

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/vibes/internal/shared"
)

// MemoryKV implements [KV] on a map. Nothing survives the process.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-process KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, shared.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = slices.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *MemoryKV) Close() error {
	return nil
}
