package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/recall/internal/port/kvstore"
)

// ErrWrongType is returned when a list operation hits a plain value or the
// reverse.
var ErrWrongType = errors.New("postgres: operation against a key holding the wrong kind of value")

// Store implements kvstore.Store on two tables: kv_entries holds plain values
// and counters, kv_lists holds list elements ordered by a sequence. Expiry is
// evaluated against the store clock on read.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ kvstore.Store   = (*Store)(nil)
	_ kvstore.Expirer = (*Store)(nil)
)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// SetClock replaces the time source used for expiry. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, value, nil)
}

func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("postgres setex %s: ttl must be positive", key)
	}
	at := s.now().Add(ttl)
	return s.put(ctx, key, value, &at)
}

// put overwrites key whatever it held before, like Redis SET.
func (s *Store) put(ctx context.Context, key string, value []byte, expiresAt *time.Time) error {
	if value == nil {
		value = []byte{}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM kv_lists WHERE key = $1`, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
			key, value, expiresAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now()).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// Incr upserts the counter in one statement; the row lock taken by
// ON CONFLICT serializes concurrent increments. An expired value restarts at 1.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO kv_entries AS e (key, value, expires_at) VALUES ($1, '\x31', NULL)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE
		     WHEN e.expires_at IS NOT NULL AND e.expires_at <= $2 THEN '\x31'::bytea
		     ELSE convert_to((convert_from(e.value, 'UTF8')::bigint + 1)::text, 'UTF8')
		   END,
		   expires_at = CASE
		     WHEN e.expires_at IS NOT NULL AND e.expires_at <= $2 THEN NULL
		     ELSE e.expires_at
		   END
		 RETURNING convert_from(e.value, 'UTF8')::bigint`,
		key, s.now()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres incr %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))
		     OR EXISTS (SELECT 1 FROM kv_lists WHERE key = $1)`,
		key, s.now()).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres exists %s: %w", key, err)
	}
	return ok, nil
}

// TTL reports how long key has left. Lists never expire.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	now := s.now()
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT expires_at FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, now).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		ok, err := s.Exists(ctx, key)
		return 0, ok, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres ttl %s: %w", key, err)
	}
	if expiresAt == nil {
		return 0, true, nil
	}
	return expiresAt.Sub(now), true, nil
}

// RPush appends value; the sequence on idx fixes the order among concurrent
// appenders.
func (s *Store) RPush(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var plain bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`,
			key, s.now()).Scan(&plain); err != nil {
			return err
		}
		if plain {
			return ErrWrongType
		}
		_, err := tx.Exec(ctx, `INSERT INTO kv_lists (key, value) VALUES ($1, $2)`, key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres rpush %s: %w", key, err)
	}
	return nil
}

// LRange resolves Redis-style indexes against the list length inside the
// query so the read is a single snapshot.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value FROM (
		   SELECT value,
		          row_number() OVER (ORDER BY idx) - 1 AS i,
		          count(*) OVER () AS n
		   FROM kv_lists WHERE key = $1
		 ) l
		 WHERE i >= CASE WHEN $2::bigint < 0 THEN n + $2::bigint ELSE $2::bigint END
		   AND i <= CASE WHEN $3::bigint < 0 THEN n + $3::bigint ELSE $3::bigint END
		 ORDER BY i`,
		key, start, stop)
	if err != nil {
		return nil, fmt.Errorf("postgres lrange %s: %w", key, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var v []byte
		err := row.Scan(&v)
		if v == nil {
			v = []byte{}
		}
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres lrange %s: %w", key, err)
	}
	if out == nil {
		out = [][]byte{}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM kv_lists WHERE key = $1`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres del %s: %w", key, err)
	}
	return nil
}

func (s *Store) FlushAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE kv_entries, kv_lists`); err != nil {
		return fmt.Errorf("postgres flush: %w", err)
	}
	return nil
}
