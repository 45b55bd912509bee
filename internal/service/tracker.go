// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	rotel "github.com/Strob0t/recall/internal/adapter/otel"
	"github.com/Strob0t/recall/internal/domain/call"
	"github.com/Strob0t/recall/internal/logger"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// Operation is a trackable call. Arguments are rendered into the input
// history as one tuple; the result is rendered into the output history.
type Operation[R any] func(ctx context.Context, args ...any) (R, error)

// CountCalls increments the invocation counter of id, then calls next.
// A store error aborts the call before next runs.
func CountCalls[R any](kv kvstore.Store, id call.Identity, next Operation[R]) Operation[R] {
	return func(ctx context.Context, args ...any) (R, error) {
		if _, err := kv.Incr(ctx, id.CounterKey()); err != nil {
			var zero R
			return zero, fmt.Errorf("count %s: %w", id, err)
		}
		return next(ctx, args...)
	}
}

// RecordHistory appends the rendered arguments to the input list of id,
// calls next and, only when next succeeds, appends the rendered result to the
// output list. A failing next leaves an input without an output.
func RecordHistory[R any](kv kvstore.Store, id call.Identity, next Operation[R]) Operation[R] {
	return func(ctx context.Context, args ...any) (R, error) {
		var zero R
		if err := kv.RPush(ctx, id.InputsKey(), []byte(call.FormatArgs(args...))); err != nil {
			return zero, fmt.Errorf("record input %s: %w", id, err)
		}

		res, err := next(ctx, args...)
		if err != nil {
			return zero, err
		}

		if err := kv.RPush(ctx, id.OutputsKey(), []byte(call.FormatOutput(res))); err != nil {
			return zero, fmt.Errorf("record output %s: %w", id, err)
		}
		return res, nil
	}
}

// Track composes counting around history recording around op. The order is
// fixed so a failure inside op still counts as a call.
func Track[R any](kv kvstore.Store, id call.Identity, op Operation[R]) Operation[R] {
	return CountCalls(kv, id, RecordHistory(kv, id, op))
}

// Tracker owns the store tracked operations persist into and remembers every
// identity it has wrapped, so replay can tell a known operation from an
// unknown one.
type Tracker struct {
	kv      kvstore.Store
	log     *slog.Logger
	metrics *rotel.Metrics

	mu  sync.RWMutex
	ids map[call.Identity]struct{}
}

// NewTracker creates a Tracker over kv. A nil logger means slog.Default().
func NewTracker(kv kvstore.Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		kv:  kv,
		log: log,
		ids: make(map[call.Identity]struct{}),
	}
}

// SetMetrics attaches metric instruments.
func (t *Tracker) SetMetrics(m *rotel.Metrics) {
	t.metrics = m
}

// Store returns the backing store.
func (t *Tracker) Store() kvstore.Store {
	return t.kv
}

// Identities returns the registered identities in lexical order.
func (t *Tracker) Identities() []call.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]call.Identity, 0, len(t.ids))
	for id := range t.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Binding returns the replay handle of id. ok is false when id was never
// wrapped by this tracker; the returned Binding is then unbound.
func (t *Tracker) Binding(id call.Identity) (b Binding, ok bool) {
	t.mu.RLock()
	_, ok = t.ids[id]
	t.mu.RUnlock()
	if !ok {
		return Binding{}, false
	}
	return Binding{Identity: id, Store: t.kv}, true
}

func (t *Tracker) register(id call.Identity) {
	t.mu.Lock()
	t.ids[id] = struct{}{}
	t.mu.Unlock()
}

// Wrap registers id and returns op tracked in t's store. Each call also gets
// a span, the tracked/failed counters and a debug log line.
func Wrap[R any](t *Tracker, id call.Identity, op Operation[R]) Operation[R] {
	t.register(id)
	tracked := Track(t.kv, id, op)

	return func(ctx context.Context, args ...any) (R, error) {
		ctx, span := rotel.StartCallSpan(ctx, string(id))
		defer span.End()

		start := time.Now()
		res, err := tracked(ctx, args...)

		attrs := metric.WithAttributes(attribute.String("identity", string(id)))
		if t.metrics != nil {
			t.metrics.CallsTracked.Add(ctx, 1, attrs)
		}
		log := logger.For(ctx, t.log)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if t.metrics != nil {
				t.metrics.CallsFailed.Add(ctx, 1, attrs)
			}
			log.Warn("tracked call failed", "identity", id, "error", err)
			return res, err
		}
		log.Debug("tracked call", "identity", id, "duration", time.Since(start))
		return res, nil
	}
}
