// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/recall/internal/port/cache"
)

// Cache combines an L1 (in-process) and L2 (shared store) cache.
// Get checks L1 first, then L2 (backfilling L1 on L2 hit).
// Set writes L2 first so L1 never holds a value the shared store lacks.
// L1 failures degrade to L2-only operation; L2 failures are returned.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	log      *slog.Logger
}

// New creates a tiered cache with the given L1 and L2 backends.
// l1Expire bounds how long L2 backfill entries live in L1. When l2
// implements cache.Expiring the backfill is further capped at the entry's
// remaining L2 lifetime, and skipped when that lifetime is unknown. Other
// L2 backends get the full l1Expire, so keep it short for them.
func New(l1, l2 cache.Cache, l1Expire time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, log: log}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		c.log.Warn("l1 cache get failed", "key", key, "error", err)
	} else if found {
		return val, true, nil
	}

	var left time.Duration
	if ex, ok := c.l2.(cache.Expiring); ok {
		val, left, found, err = ex.GetWithTTL(ctx, key)
	} else {
		val, found, err = c.l2.Get(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	if ttl := c.backfillTTL(left); ttl > 0 {
		if err := c.l1.Set(ctx, key, val, ttl); err != nil {
			c.log.Warn("l1 cache backfill failed", "key", key, "error", err)
		}
	}
	return val, true, nil
}

// backfillTTL picks the L1 lifetime for an entry with left remaining in L2.
// The L1 copy must never outlive the L2 entry.
func (c *Cache) backfillTTL(left time.Duration) time.Duration {
	switch {
	case c.l1Expire <= 0, left < 0:
		return 0
	case left > 0 && left < c.l1Expire:
		return left
	default:
		return c.l1Expire
	}
}

// Set writes to L2, then L1 with the same TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		c.log.Warn("l1 cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes from both L1 and L2.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		c.log.Warn("l1 cache delete failed", "key", key, "error", err)
	}
	return c.l2.Delete(ctx, key)
}
