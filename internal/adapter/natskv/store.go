// Package natskv implements the kvstore port on a NATS JetStream KV bucket.
//
// JetStream KV has no native counters or lists, so Incr and RPush are
// read-modify-write loops guarded by the entry revision (optimistic
// concurrency): a concurrent writer makes Update fail and the loop retries
// on the fresh value. Keys are base64url-encoded because KV keys cannot hold
// ':' or '/'. Per-key expiry is stored in the entry and enforced on read.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/recall/internal/config"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// maxCASAttempts bounds the optimistic retry loop of Incr and RPush.
const maxCASAttempts = 128

// flushParallelism bounds concurrent purges in FlushAll.
const flushParallelism = 16

// ErrContention is returned when a read-modify-write loses every attempt.
var ErrContention = errors.New("natskv: too much contention on key")

// record is the stored form of every key.
type record struct {
	Value     []byte   `json:"v,omitempty"`
	List      [][]byte `json:"l,omitempty"`
	IsList    bool     `json:"list,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"` // unix nanoseconds, 0 = never
}

// Store wraps a NATS JetStream KeyValue bucket.
type Store struct {
	kv  jetstream.KeyValue
	nc  *nats.Conn // nil when constructed with New
	now func() time.Time
}

var (
	_ kvstore.Store   = (*Store)(nil)
	_ kvstore.Expirer = (*Store)(nil)
)

// New creates a store on an existing bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Connect establishes a connection to NATS and ensures the KV bucket exists.
func Connect(ctx context.Context, cfg config.NATS) (*Store, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "recall call tracking and memoized results",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream kv bucket %s: %w", cfg.Bucket, err)
	}

	slog.Info("nats connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return &Store{kv: kv, nc: nc, now: time.Now}, nil
}

// Close shuts down the NATS connection when the store owns it.
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// Ping round-trips to the server when the store owns the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.nc == nil {
		return nil
	}
	return s.nc.FlushWithContext(ctx)
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(enc string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// load returns the live record for key and the revision it was read at.
// A missing key yields (nil, 0, nil); an expired key yields (nil, rev, nil)
// so that callers overwrite it with Update rather than Create.
func (s *Store) load(ctx context.Context, key string) (*record, uint64, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("nats kv get %s: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, 0, fmt.Errorf("nats kv decode %s: %w", key, err)
	}
	if rec.ExpiresAt != 0 && s.now().UnixNano() >= rec.ExpiresAt {
		return nil, entry.Revision(), nil
	}
	return &rec, entry.Revision(), nil
}

func (s *Store) put(ctx context.Context, key string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("nats kv encode %s: %w", key, err)
	}
	if _, err := s.kv.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("nats kv put %s: %w", key, err)
	}
	return nil
}

// modify applies fn to the current record under revision control until the
// write lands without a concurrent change.
func (s *Store) modify(ctx context.Context, key string, fn func(cur *record) (record, error)) error {
	for range maxCASAttempts {
		cur, rev, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("nats kv encode %s: %w", key, err)
		}

		if rev == 0 {
			_, err = s.kv.Create(ctx, encodeKey(key), data)
		} else {
			_, err = s.kv.Update(ctx, encodeKey(key), data, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("nats kv write %s: %w", key, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s", ErrContention, key)
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, record{Value: value})
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	rec, _, err := s.load(ctx, key)
	if err != nil || rec == nil {
		return nil, false, err
	}
	if rec.IsList {
		return nil, false, fmt.Errorf("nats kv get %s: key holds a list", key)
	}
	if rec.Value == nil {
		return []byte{}, true, nil
	}
	return rec.Value, true, nil
}

// Incr increments the counter under key.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.modify(ctx, key, func(cur *record) (record, error) {
		n = 0
		if cur != nil {
			if cur.IsList {
				return record{}, fmt.Errorf("nats kv incr %s: key holds a list", key)
			}
			v, err := strconv.ParseInt(string(cur.Value), 10, 64)
			if err != nil {
				return record{}, fmt.Errorf("nats kv incr %s: value is not an integer", key)
			}
			n = v
		}
		n++
		return record{Value: strconv.AppendInt(nil, n, 10)}, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Exists reports whether key holds a live value or list.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	rec, _, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// TTL reports how long key has left; keys without expiry report zero.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	rec, _, err := s.load(ctx, key)
	if err != nil || rec == nil {
		return 0, false, err
	}
	if rec.ExpiresAt == 0 {
		return 0, true, nil
	}
	return time.Duration(rec.ExpiresAt - s.now().UnixNano()), true, nil
}

// RPush appends value to the list under key.
func (s *Store) RPush(ctx context.Context, key string, value []byte) error {
	return s.modify(ctx, key, func(cur *record) (record, error) {
		if cur == nil {
			return record{IsList: true, List: [][]byte{value}}, nil
		}
		if !cur.IsList {
			return record{}, fmt.Errorf("nats kv rpush %s: key holds a value", key)
		}
		return record{IsList: true, List: append(cur.List, value)}, nil
	})
}

// LRange returns list elements between start and stop inclusive.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	rec, _, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return [][]byte{}, nil
	}
	if !rec.IsList {
		return nil, fmt.Errorf("nats kv lrange %s: key holds a value", key)
	}
	lo, hi, ok := kvstore.Bounds(int64(len(rec.List)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	return rec.List[lo:hi], nil
}

// SetEx stores value under key, expiring after ttl.
func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("nats kv setex %s: ttl must be positive", key)
	}
	return s.put(ctx, key, record{Value: value, ExpiresAt: s.now().Add(ttl).UnixNano()})
}

// Delete removes key and its history.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Purge(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats kv purge %s: %w", key, err)
	}
	return nil
}

// FlushAll purges every key in the bucket.
func (s *Store) FlushAll(ctx context.Context) error {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("nats kv list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flushParallelism)
	for enc := range lister.Keys() {
		g.Go(func() error {
			if err := s.kv.Purge(gctx, enc); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
				key, _ := decodeKey(enc)
				return fmt.Errorf("nats kv purge %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}
