package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Strob0t/recall/internal/adapter/memory"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

var errStoreDown = errors.New("store unavailable")

// failingStore wraps a memory store and fails the named operations.
type failingStore struct {
	*memory.Store
	fail map[string]bool
}

func newFailingStore(ops ...string) *failingStore {
	f := &failingStore{Store: memory.New(), fail: map[string]bool{}}
	for _, op := range ops {
		f.fail[op] = true
	}
	return f
}

var _ kvstore.Store = (*failingStore)(nil)

func (f *failingStore) Incr(ctx context.Context, key string) (int64, error) {
	if f.fail["incr"] {
		return 0, errStoreDown
	}
	return f.Store.Incr(ctx, key)
}

func (f *failingStore) RPush(ctx context.Context, key string, value []byte) error {
	if f.fail["rpush"] {
		return errStoreDown
	}
	return f.Store.RPush(ctx, key, value)
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.fail["get"] {
		return nil, false, errStoreDown
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail["set"] {
		return errStoreDown
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.fail["setex"] {
		return errStoreDown
	}
	return f.Store.SetEx(ctx, key, value, ttl)
}

func (f *failingStore) FlushAll(ctx context.Context) error {
	if f.fail["flush"] {
		return errStoreDown
	}
	return f.Store.FlushAll(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock is a manually advanced time source for expiry tests.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
