package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	rotel "github.com/Strob0t/recall/internal/adapter/otel"
	"github.com/Strob0t/recall/internal/logger"
	"github.com/Strob0t/recall/internal/port/cache"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// ResultTTL is how long a fetched page stays memoized.
const ResultTTL = 10 * time.Second

// ErrFetchFailed wraps errors returned by the FetchFunc, so callers can tell
// an upstream failure from a store failure.
var ErrFetchFailed = errors.New("fetch failed")

// FetchFunc is the idempotent external call being memoized.
type FetchFunc func(ctx context.Context, url string) (string, error)

// CountKey is the key of the request counter for url.
func CountKey(url string) string { return "count:" + url }

// ResultKey is the key of the memoized result for url.
func ResultKey(url string) string { return "result:" + url }

// RequestCache memoizes FetchFunc results in the store for ResultTTL and
// counts every request. Concurrent misses for the same url may all fetch;
// the last write wins.
type RequestCache struct {
	kv      kvstore.Store
	results cache.Cache
	fetch   FetchFunc
	log     *slog.Logger
	metrics *rotel.Metrics
}

// NewRequestCache creates a RequestCache over kv. A nil logger means slog.Default().
func NewRequestCache(kv kvstore.Store, fetch FetchFunc, log *slog.Logger) *RequestCache {
	if log == nil {
		log = slog.Default()
	}
	return &RequestCache{
		kv:      kv,
		results: kvstore.AsCache(kv),
		fetch:   fetch,
		log:     log,
	}
}

// SetResultCache replaces where results are memoized. The cache must
// ultimately persist into the same store, e.g. a tiered cache with
// kvstore.AsCache as its second level.
func (c *RequestCache) SetResultCache(rc cache.Cache) {
	c.results = rc
}

// SetMetrics attaches metric instruments.
func (c *RequestCache) SetMetrics(m *rotel.Metrics) {
	c.metrics = m
}

// Fetch counts the request, then returns the memoized result for url or
// fetches and memoizes it. Fetch errors are returned and nothing is cached;
// the request still counts.
func (c *RequestCache) Fetch(ctx context.Context, url string) (string, error) {
	ctx, span := rotel.StartFetchSpan(ctx, url)
	defer span.End()
	log := logger.For(ctx, c.log)

	if _, err := c.kv.Incr(ctx, CountKey(url)); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("count request %s: %w", url, err)
	}
	if c.metrics != nil {
		c.metrics.Requests.Add(ctx, 1)
	}

	cached, ok, err := c.results.Get(ctx, ResultKey(url))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("lookup result %s: %w", url, err)
	}
	if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		if c.metrics != nil {
			c.metrics.CacheHits.Add(ctx, 1)
		}
		log.Debug("request cache hit", "url", url)
		return string(cached), nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	start := time.Now()
	body, err := c.fetch(ctx, url)
	if c.metrics != nil {
		c.metrics.FetchDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("fetch failed", "url", url, "error", err)
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}

	if err := c.results.Set(ctx, ResultKey(url), []byte(body), ResultTTL); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("memoize result %s: %w", url, err)
	}
	log.Debug("request cache miss", "url", url, "bytes", len(body))
	return body, nil
}

// Requests returns how many times url was requested through Fetch.
func (c *RequestCache) Requests(ctx context.Context, url string) (int64, error) {
	n, err := readCounter(ctx, c.kv, CountKey(url))
	if err != nil {
		return 0, fmt.Errorf("read request count %s: %w", url, err)
	}
	return n, nil
}
