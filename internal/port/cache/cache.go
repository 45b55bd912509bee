// Package cache defines the port interface for byte caches with per-entry TTL.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. A cache may drop
// entries at any time; a miss is never an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Expiring is implemented by caches that can report an entry's remaining
// lifetime along with its value. A negative ttl means the lifetime is
// unknown; zero means the entry does not expire.
type Expiring interface {
	GetWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, found bool, err error)
}
