// Package ristretto is the in-process L1 result cache. It sits in front of
// the shared store so repeated page lookups within the result TTL skip the
// network round trip.
package ristretto

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/recall/internal/port/cache"
)

// bufferItems is ristretto's recommended Get buffer size.
const bufferItems = 64

// avgEntryBytes sizes the admission counters; memoized pages are larger
// than typical cache values.
const avgEntryBytes = 4 << 10

// Cache holds memoized results in memory. Entries are admitted by
// ristretto's TinyLFU policy, so a Set may be dropped; callers see a miss.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

var _ cache.Cache = (*Cache)(nil)

// Stats is a snapshot of L1 effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// New creates a cache holding at most maxCostBytes of keys plus values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		return nil, errors.New("ristretto: max cost must be positive")
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(10*maxCostBytes/avgEntryBytes, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: bufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// NewMB creates a cache sized in megabytes.
func NewMB(maxSizeMB int64) (*Cache, error) {
	return New(maxSizeMB << 20)
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set admits value for ttl. A non-positive ttl is ignored: memoized results
// must always expire, and ristretto treats zero as forever.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.c.SetWithTTL(key, value, int64(len(key)+len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Stats reports hits and misses since creation.
func (c *Cache) Stats() Stats {
	m := c.c.Metrics
	return Stats{Hits: m.Hits(), Misses: m.Misses(), Ratio: m.Ratio()}
}

// Close stops ristretto's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
