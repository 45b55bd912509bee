// Package memory implements the kvstore port in process memory.
// It is the default backend for local runs and the backend used by tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Strob0t/recall/internal/port/kvstore"
)

type entry struct {
	value     []byte
	list      [][]byte
	isList    bool
	expiresAt time.Time // zero means no expiry
}

// Store is a mutex-guarded map with Redis-like semantics.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time // for testing
}

var (
	_ kvstore.Store   = (*Store)(nil)
	_ kvstore.Expirer = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

// SetClock replaces the clock used for expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// lookup returns the live entry for key, evicting it if expired.
// Must be called with s.mu held.
func (s *Store) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

// Set stores value under key, clearing any expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &entry{value: clone(value)}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return nil, false, nil
	}
	if e.isList {
		return nil, false, fmt.Errorf("get %s: key holds a list", key)
	}
	return clone(e.value), true, nil
}

// Incr increments the integer stored under key.
func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		s.data[key] = &entry{value: []byte("1")}
		return 1, nil
	}
	if e.isList {
		return 0, fmt.Errorf("incr %s: key holds a list", key)
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incr %s: value is not an integer", key)
	}
	n++
	e.value = strconv.AppendInt(nil, n, 10)
	return n, nil
}

// Exists reports whether key holds a live value or list.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key) != nil, nil
}

// TTL reports how long key has left; keys without expiry report zero.
func (s *Store) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return 0, true, nil
	}
	return e.expiresAt.Sub(s.now()), true, nil
}

// RPush appends value to the list stored under key.
func (s *Store) RPush(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{isList: true}
		s.data[key] = e
	}
	if !e.isList {
		return fmt.Errorf("rpush %s: key holds a value", key)
	}
	e.list = append(e.list, clone(value))
	return nil
}

// LRange returns list elements between start and stop inclusive.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return [][]byte{}, nil
	}
	if !e.isList {
		return nil, fmt.Errorf("lrange %s: key holds a value", key)
	}
	lo, hi, ok := kvstore.Bounds(int64(len(e.list)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo)
	for _, v := range e.list[lo:hi] {
		out = append(out, clone(v))
	}
	return out, nil
}

// SetEx stores value under key and expires it after ttl.
func (s *Store) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("setex %s: ttl must be positive", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &entry{value: clone(value), expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// FlushAll removes every key.
func (s *Store) FlushAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
	return nil
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data {
		if s.lookup(k) != nil {
			n++
		}
	}
	return n
}

// clone copies b. The result is never nil, so empty values stay present.
func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
