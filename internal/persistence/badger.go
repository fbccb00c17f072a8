package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/desertthunder/vibes/internal/shared"
)

// BadgerKV implements [KV] on an embedded BadgerDB.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB directory at path. An empty path opens an in-memory database.
func OpenBadger(path string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return shared.ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BadgerKV) Set(ctx context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

func (b *BadgerKV) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}
