package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger keeps vectors in an embedded BadgerDB
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory database.
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(expandPath(path)).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &Badger{db: db}, nil
}

func (b *Badger) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var vector []float32

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			decoded, err := decodeVector(val)
			if err != nil {
				return err
			}
			vector = decoded
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return vector, true, nil
}

func (b *Badger) Set(ctx context.Context, key string, vector []float32) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeVector(vector))
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
