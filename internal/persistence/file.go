package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/desertthunder/vibes/internal/shared"
)

// FileKV implements [KV] as a single JSON document rewritten on every change.
// Values must be valid JSON.
type FileKV struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// OpenFile loads the JSON document at path, starting empty when it does not exist.
func OpenFile(path string) (*FileKV, error) {
	f := &FileKV{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return f, nil
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.data[key]
	if !ok {
		return nil, shared.ErrKeyNotFound
	}
	return slices.Clone([]byte(v)), nil
}

func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: value for %s is not JSON", shared.ErrInvalidInput, key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = slices.Clone(value)
	return f.flush()
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.data, key)
	return f.flush()
}

func (f *FileKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (f *FileKV) Close() error {
	return nil
}

// flush writes through a temp file so a crash never leaves a truncated document.
func (f *FileKV) flush() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}
