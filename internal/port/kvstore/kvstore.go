// Package kvstore defines the port interface for the ordered key-value store
// the tracking and memoization layers persist into.
package kvstore

import (
	"context"
	"time"
)

// Store is the minimal capability set consumed from the backing store.
//
// Incr and RPush must be atomic per key. Expired entries are invisible to
// Get and Exists. Missing keys are not errors: Get reports found=false,
// Incr starts from zero and LRange returns an empty slice.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Incr(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	RPush(ctx context.Context, key string, value []byte) error
	// LRange returns the elements between start and stop inclusive. Negative
	// indexes count from the tail, so LRange(ctx, key, 0, -1) is the whole list.
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key whatever it holds. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// FlushAll removes every key in the store's namespace.
	FlushAll(ctx context.Context) error
}

// Expirer is implemented by stores that can report how long an entry has
// left. found is false for a missing or expired key; a key without expiry
// reports a zero ttl.
type Expirer interface {
	TTL(ctx context.Context, key string) (ttl time.Duration, found bool, err error)
}

// Bounds converts Redis-style inclusive start/stop indexes into a half-open
// [lo, hi) slice range for a list of length n. ok is false when the range
// is empty.
func Bounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
