package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/goferpkg/gofer/internal/domain"
)

// BadgerCache stores API metadata (commit lookups, default branches) in a
// BadgerDB keyed by the helpers in keys.go. Expiry rides on Badger's TTL, so
// a stale entry simply reads as a miss.
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens the store at opts.Directory, creating it if needed.
// InMemory stores nothing on disk and serves tests.
func NewBadgerCache(opts Options) (*BadgerCache, error) {
	var badgerOpts badger.Options
	switch {
	case opts.InMemory:
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if opts.Directory == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("resolving cache directory: %w", err)
			}
			opts.Directory = filepath.Join(base, "gofer", "api")
		}
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, err
		}
		badgerOpts = badger.DefaultOptions(opts.Directory)
	}

	// Badger's own logger is chatty; stay quiet unless asked.
	if !opts.Logger {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	c := &BadgerCache{db: db}
	go c.collectGarbage()
	return c, nil
}

// collectGarbage reclaims value-log space periodically until the store
// closes.
func (c *BadgerCache) collectGarbage() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if c.db.IsClosed() {
			return
		}
		_ = c.db.RunValueLogGC(0.5)
	}
}

// Get retrieves a value. Keys are used verbatim; callers compose them with
// the helpers in keys.go. Absent and expired entries both return ErrCacheMiss.
func (c *BadgerCache) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrCacheMiss
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value. A positive ttl makes the entry expire on its own.
func (c *BadgerCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Has reports whether key holds a live entry.
func (c *BadgerCache) Has(_ context.Context, key string) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	return err == nil
}

// Delete removes a key. Missing keys are not an error.
func (c *BadgerCache) Delete(_ context.Context, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases the store.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// Clear drops every entry.
func (c *BadgerCache) Clear() error {
	return c.db.DropAll()
}

// Size counts live entries, for diagnostics and tests.
func (c *BadgerCache) Size() int64 {
	var count int64
	_ = c.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}
