package kvstore

import (
	"context"
	"time"

	"github.com/Strob0t/recall/internal/port/cache"
)

// Cache exposes a Store through the cache port. Entries written with a
// positive TTL expire in the store; a non-positive TTL writes a permanent
// entry.
type Cache struct {
	s Store
}

var (
	_ cache.Cache    = (*Cache)(nil)
	_ cache.Expiring = (*Cache)(nil)
)

// AsCache adapts s to the cache port.
func AsCache(s Store) *Cache {
	return &Cache{s: s}
}

// Get reads key from the store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	return c.s.Get(ctx, key)
}

// GetWithTTL reads key and, when the store implements Expirer, how long it
// has left. The ttl is negative when the store cannot tell, including when
// the key expired between the two reads.
func (c *Cache) GetWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, found bool, err error) {
	value, found, err = c.s.Get(ctx, key)
	if err != nil || !found {
		return nil, 0, found, err
	}
	ex, ok := c.s.(Expirer)
	if !ok {
		return value, -1, true, nil
	}
	ttl, live, err := ex.TTL(ctx, key)
	if err != nil {
		return nil, 0, false, err
	}
	if !live {
		return value, -1, true, nil
	}
	return value, ttl, true, nil
}

// Set writes key with SetEx, or Set when ttl is not positive.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return c.s.Set(ctx, key, value)
	}
	return c.s.SetEx(ctx, key, value, ttl)
}

// Delete removes key from the store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.s.Delete(ctx, key)
}
