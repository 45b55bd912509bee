// Package kvstoretest provides the compliance suite every kvstore.Store
// backend must pass.
package kvstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/recall/internal/port/kvstore"
)

// Options tunes the suite for a backend.
type Options struct {
	// Expire makes previously written SetEx entries expire. Backends that
	// evict on their own clock pass a function that advances it. When nil the
	// expiry test is skipped.
	Expire func(t *testing.T, ttl time.Duration)
}

// Run runs the standard compliance test suite against s. The store is
// flushed before every subtest.
func Run(t *testing.T, s kvstore.Store, opts Options) {
	t.Helper()
	ctx := context.Background()

	reset := func(t *testing.T) {
		t.Helper()
		if err := s.FlushAll(ctx); err != nil {
			t.Fatalf("FlushAll: %v", err)
		}
	}

	t.Run("SetAndGet", func(t *testing.T) {
		reset(t)
		if err := s.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "v" {
			t.Fatalf("expected v, got %s", val)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		reset(t)
		if err := s.Set(ctx, "empty", []byte{}); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "empty")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("an empty value must read back as present")
		}
		if len(val) != 0 {
			t.Fatalf("expected empty value, got %q", val)
		}
		if err := s.SetEx(ctx, "empty-ttl", nil, time.Minute); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := s.Get(ctx, "empty-ttl"); !found {
			t.Fatal("an empty value written with a TTL must read back as present")
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		reset(t)
		_, found, err := s.Get(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		reset(t)
		_ = s.Set(ctx, "ow", []byte("v1"))
		_ = s.Set(ctx, "ow", []byte("v2"))
		val, _, err := s.Get(ctx, "ow")
		if err != nil {
			t.Fatal(err)
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %s", val)
		}
	})

	t.Run("KeysWithSeparators", func(t *testing.T) {
		reset(t)
		key := "result:http://example.com/a?b=c"
		if err := s.Set(ctx, key, []byte("page")); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "page" {
			t.Fatalf("expected page, got %q (found=%v)", val, found)
		}
	})

	t.Run("Incr", func(t *testing.T) {
		reset(t)
		for want := int64(1); want <= 3; want++ {
			got, err := s.Incr(ctx, "counter")
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		}
		val, found, err := s.Get(ctx, "counter")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "3" {
			t.Fatalf("expected counter to read back as 3, got %q", val)
		}
	})

	t.Run("IncrConcurrent", func(t *testing.T) {
		reset(t)
		const workers, perWorker = 8, 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					if _, err := s.Incr(ctx, "hot"); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}
		val, _, err := s.Get(ctx, "hot")
		if err != nil {
			t.Fatal(err)
		}
		if string(val) != fmt.Sprint(workers*perWorker) {
			t.Fatalf("expected %d increments, got %s", workers*perWorker, val)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		reset(t)
		ok, err := s.Exists(ctx, "e")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected absent key")
		}
		_ = s.Set(ctx, "e", []byte("1"))
		ok, err = s.Exists(ctx, "e")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected key to exist after Set")
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		reset(t)
		for _, v := range []string{"a", "b", "c"} {
			if err := s.RPush(ctx, "list", []byte(v)); err != nil {
				t.Fatal(err)
			}
		}
		all, err := s.LRange(ctx, "list", 0, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 || string(all[0]) != "a" || string(all[2]) != "c" {
			t.Fatalf("unexpected list %q", all)
		}
		tail, err := s.LRange(ctx, "list", -2, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(tail) != 2 || string(tail[0]) != "b" {
			t.Fatalf("unexpected tail %q", tail)
		}
	})

	t.Run("RPushConcurrent", func(t *testing.T) {
		reset(t)
		const workers, perWorker = 8, 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perWorker {
					if err := s.RPush(ctx, "hot-list", []byte(fmt.Sprintf("w%d-%d", w, i))); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}
		all, err := s.LRange(ctx, "hot-list", 0, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != workers*perWorker {
			t.Fatalf("expected %d elements, got %d", workers*perWorker, len(all))
		}
		// Every element lands once and each worker's pushes keep their order.
		next := make(map[int]int, workers)
		for _, v := range all {
			var w, i int
			if _, err := fmt.Sscanf(string(v), "w%d-%d", &w, &i); err != nil {
				t.Fatalf("unexpected element %q", v)
			}
			if i != next[w] {
				t.Fatalf("worker %d: expected element %d, got %d", w, next[w], i)
			}
			next[w]++
		}
		for w := range workers {
			if next[w] != perWorker {
				t.Fatalf("worker %d: expected %d elements, got %d", w, perWorker, next[w])
			}
		}
	})

	t.Run("LRangeMissing", func(t *testing.T) {
		reset(t)
		got, err := s.LRange(ctx, "nolist", 0, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty list, got %q", got)
		}
	})

	t.Run("SetEx", func(t *testing.T) {
		reset(t)
		if err := s.SetEx(ctx, "ttl", []byte("soon gone"), time.Second); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "ttl")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "soon gone" {
			t.Fatalf("expected value before expiry, got %q", val)
		}
		if opts.Expire == nil {
			t.Skip("backend cannot advance its clock")
		}
		opts.Expire(t, 2*time.Second)
		if _, found, _ := s.Get(ctx, "ttl"); found {
			t.Fatal("expected entry to expire")
		}
		if ok, _ := s.Exists(ctx, "ttl"); ok {
			t.Fatal("expected expired entry to not exist")
		}
	})

	t.Run("TTL", func(t *testing.T) {
		ex, ok := s.(kvstore.Expirer)
		if !ok {
			t.Skip("backend does not report remaining lifetimes")
		}
		reset(t)
		_ = s.SetEx(ctx, "short", []byte("v"), time.Minute)
		_ = s.Set(ctx, "forever", []byte("v"))
		_ = s.RPush(ctx, "list", []byte("x"))

		ttl, found, err := ex.TTL(ctx, "short")
		if err != nil {
			t.Fatal(err)
		}
		if !found || ttl <= 0 || ttl > time.Minute {
			t.Fatalf("expected a lifetime within 1m, got %v (found=%v)", ttl, found)
		}
		for _, k := range []string{"forever", "list"} {
			ttl, found, err := ex.TTL(ctx, k)
			if err != nil {
				t.Fatal(err)
			}
			if !found || ttl != 0 {
				t.Fatalf("%s: expected no expiry, got %v (found=%v)", k, ttl, found)
			}
		}
		if _, found, _ := ex.TTL(ctx, "missing"); found {
			t.Fatal("expected missing key to report not found")
		}
		if opts.Expire == nil {
			return
		}
		opts.Expire(t, 30*time.Second)
		ttl, _, _ = ex.TTL(ctx, "short")
		if ttl <= 0 || ttl > 30*time.Second {
			t.Fatalf("expected at most 30s left, got %v", ttl)
		}
		opts.Expire(t, time.Minute)
		if _, found, _ := ex.TTL(ctx, "short"); found {
			t.Fatal("expected expired key to report not found")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		reset(t)
		_ = s.Set(ctx, "d", []byte("1"))
		_ = s.RPush(ctx, "dl", []byte("x"))
		for _, k := range []string{"d", "dl", "never-existed"} {
			if err := s.Delete(ctx, k); err != nil {
				t.Fatalf("Delete(%s): %v", k, err)
			}
			if ok, _ := s.Exists(ctx, k); ok {
				t.Fatalf("expected %s to be deleted", k)
			}
		}
	})

	t.Run("FlushAll", func(t *testing.T) {
		reset(t)
		_ = s.Set(ctx, "a", []byte("1"))
		_, _ = s.Incr(ctx, "b")
		_ = s.RPush(ctx, "c", []byte("x"))
		if err := s.FlushAll(ctx); err != nil {
			t.Fatal(err)
		}
		for _, k := range []string{"a", "b", "c"} {
			ok, err := s.Exists(ctx, k)
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatalf("expected %s to be flushed", k)
			}
		}
	})
}
