package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	rotel "github.com/Strob0t/recall/internal/adapter/otel"
	"github.com/Strob0t/recall/internal/domain"
	"github.com/Strob0t/recall/internal/domain/call"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// StoreIdentity is the tracked identity of ValueStore.Store.
const StoreIdentity call.Identity = "ValueStore.Store"

// Converter decodes a raw stored value.
type Converter[T any] func(raw []byte) (T, error)

// ValueStore writes values under random keys and reads them back with
// optional conversion. Store is tracked; reads are not.
type ValueStore struct {
	kv      kvstore.Store
	tracker *Tracker
	store   Operation[string]
	log     *slog.Logger
	metrics *rotel.Metrics
}

// NewValueStore flushes every key in kv, then returns a ValueStore whose
// Store calls are tracked by tracker. The flush is destructive: kv must not
// hold data owned by anyone else.
func NewValueStore(ctx context.Context, kv kvstore.Store, tracker *Tracker) (*ValueStore, error) {
	if err := kv.FlushAll(ctx); err != nil {
		return nil, fmt.Errorf("reset value store: %w", err)
	}
	s := &ValueStore{kv: kv, tracker: tracker, log: tracker.log}
	s.store = Wrap(tracker, StoreIdentity, s.put)
	s.log.Info("value store reset", "identity", StoreIdentity)
	return s, nil
}

// SetMetrics attaches metric instruments.
func (s *ValueStore) SetMetrics(m *rotel.Metrics) {
	s.metrics = m
}

// Store writes v under a fresh random key and returns the key. v must be
// text, bytes, an integer or a float; other types are rejected before
// anything is recorded.
func (s *ValueStore) Store(ctx context.Context, v any) (string, error) {
	if _, err := encodeValue(v); err != nil {
		return "", err
	}
	return s.store(ctx, v)
}

func (s *ValueStore) put(ctx context.Context, args ...any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: store takes exactly one value", domain.ErrValidation)
	}
	raw, err := encodeValue(args[0])
	if err != nil {
		return "", err
	}

	key := uuid.NewString()
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return "", fmt.Errorf("store value: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ValuesStored.Add(ctx, 1, metric.WithAttributes(attribute.String("type", valueType(args[0]))))
	}
	return key, nil
}

// Get returns the raw value under key, or nil when the key is absent. A
// stored empty value is returned as a non-nil empty slice.
func (s *ValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get value %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}

// GetString returns the value under key decoded as UTF-8 text.
func (s *ValueStore) GetString(ctx context.Context, key string) (string, error) {
	return Retrieve(ctx, s, key, AsText)
}

// GetInt returns the value under key parsed as a base-10 integer.
func (s *ValueStore) GetInt(ctx context.Context, key string) (int64, error) {
	return Retrieve(ctx, s, key, AsInt)
}

// GetFloat returns the value under key parsed as a float.
func (s *ValueStore) GetFloat(ctx context.Context, key string) (float64, error) {
	return Retrieve(ctx, s, key, AsFloat)
}

// Binding exposes the Store operation to replay.
func (s *ValueStore) Binding() Binding {
	b, _ := s.tracker.Binding(StoreIdentity)
	return b
}

// Retrieve reads key and passes the raw value through conv. An absent key
// yields the zero T without calling conv. A nil conv returns the raw bytes
// and requires T to be []byte.
func Retrieve[T any](ctx context.Context, s *ValueStore, key string, conv Converter[T]) (T, error) {
	var zero T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	if conv == nil {
		v, ok := any(raw).(T)
		if !ok {
			return zero, fmt.Errorf("%w: no converter for %T", domain.ErrValidation, zero)
		}
		return v, nil
	}
	return conv(raw)
}

// AsText decodes raw as UTF-8.
func AsText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: not valid utf-8", domain.ErrMalformed)
	}
	return string(raw), nil
}

// AsInt parses raw as a base-10 integer. Surrounding whitespace is ignored.
func AsInt(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not an integer: %q", domain.ErrMalformed, raw)
	}
	return n, nil
}

// AsFloat parses raw as a float. Surrounding whitespace is ignored.
func AsFloat(raw []byte) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a float: %q", domain.ErrMalformed, raw)
	}
	return f, nil
}

// encodeValue renders v the way it is written to the store: text and bytes
// verbatim, integers in base 10, floats in shortest round-trip form.
func encodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case int:
		return strconv.AppendInt(nil, int64(x), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(nil, x, 10), nil
	case float32:
		return strconv.AppendFloat(nil, float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.AppendFloat(nil, x, 'g', -1, 64), nil
	default:
		return nil, fmt.Errorf("%w: cannot store %T", domain.ErrValidation, v)
	}
}

func valueType(v any) string {
	switch v.(type) {
	case string:
		return "text"
	case []byte:
		return "bytes"
	case float32, float64:
		return "float"
	default:
		return "int"
	}
}
