package cache

import (
	"context"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
)

// Ensure both stores implement domain.MetadataCache
var (
	_ domain.MetadataCache = (*BadgerCache)(nil)
	_ domain.MetadataCache = (*NopCache)(nil)
)

// Options contains cache configuration options
type Options struct {
	Directory string
	InMemory  bool
	Logger    bool
}

// DefaultOptions returns default cache options
func DefaultOptions() Options {
	return Options{
		Directory: "",
		InMemory:  false,
		Logger:    false,
	}
}

// NopCache satisfies domain.MetadataCache without storing anything. It backs
// runs where the API cache is disabled, so callers never branch on nil.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, domain.ErrCacheMiss
}

func (NopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NopCache) Has(ctx context.Context, key string) bool { return false }

func (NopCache) Delete(ctx context.Context, key string) error { return nil }

func (NopCache) Close() error { return nil }
