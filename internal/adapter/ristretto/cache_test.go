package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/recall/internal/adapter/ristretto"
	"github.com/Strob0t/recall/internal/port/cache/cachetest"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.NewMB(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRistretto_Compliance(t *testing.T) {
	cachetest.Run(t, newCache(t))
}

func TestRistretto_RejectsZeroSize(t *testing.T) {
	if _, err := ristretto.New(0); err == nil {
		t.Fatal("expected error for zero max cost")
	}
}

func TestRistretto_IgnoresEntriesWithoutTTL(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "result:http://x", []byte("page"), 0); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "result:http://x"); found {
		t.Fatal("an entry without expiry must not be admitted")
	}
}

func TestRistretto_EntryExpires(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "result:http://x", []byte("page"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "result:http://x"); !found {
		t.Fatal("expected hit before expiry")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := c.Get(ctx, "result:http://x"); !found {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("entry still visible after its TTL")
}

func TestRistretto_Stats(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "missing")

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", st)
	}
	if st.Ratio != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", st.Ratio)
	}
}
