package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/recall/internal/adapter/fetch"
	rhttp "github.com/Strob0t/recall/internal/adapter/http"
	rotel "github.com/Strob0t/recall/internal/adapter/otel"
	"github.com/Strob0t/recall/internal/adapter/ristretto"
	"github.com/Strob0t/recall/internal/adapter/tiered"
	"github.com/Strob0t/recall/internal/config"
	"github.com/Strob0t/recall/internal/logger"
	"github.com/Strob0t/recall/internal/middleware"
	"github.com/Strob0t/recall/internal/port/kvstore"
	"github.com/Strob0t/recall/internal/resilience"
	"github.com/Strob0t/recall/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Store.Backend,
		"log_level", cfg.Logging.Level,
		"l1_cache_mb", cfg.Cache.L1MaxSizeMB,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := rotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := rotel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Store ---
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer be.close()

	// --- Services ---
	tracker := service.NewTracker(be.store, log)
	tracker.SetMetrics(metrics)

	values, err := service.NewValueStore(ctx, be.store, tracker)
	if err != nil {
		return fmt.Errorf("value store: %w", err)
	}
	values.SetMetrics(metrics)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	fetcher := fetch.NewClient(cfg.Fetch)
	fetcher.SetBreaker(breaker)
	fetcher.SetPool(resilience.NewPool(cfg.Fetch.MaxConcurrent))

	pages := service.NewRequestCache(be.store, fetcher.Get, log)
	pages.SetMetrics(metrics)

	if cfg.Cache.L1MaxSizeMB > 0 {
		l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
		if err != nil {
			return fmt.Errorf("l1 cache: %w", err)
		}
		defer func() {
			st := l1.Stats()
			slog.Info("l1 result cache", "hits", st.Hits, "misses", st.Misses, "ratio", st.Ratio)
			l1.Close()
		}()
		pages.SetResultCache(tiered.New(l1, kvstore.AsCache(be.store), cfg.Cache.L1Expire, log))
		slog.Info("l1 result cache enabled", "max_mb", cfg.Cache.L1MaxSizeMB, "expire", cfg.Cache.L1Expire)
	}

	// --- HTTP ---
	handlers := &rhttp.Handlers{
		Tracker: tracker,
		Values:  values,
		Pages:   pages,
		Backend: cfg.Store.Backend,
		Breaker: breaker,
		Ping:    be.ping,
	}

	r := chi.NewRouter()
	r.Use(rotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.RequestID)
	r.Use(rhttp.RequestLogger(log))
	r.Use(rhttp.SecurityHeaders)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	var pagesMW []func(http.Handler) http.Handler
	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		limiter := middleware.NewRateLimiter(rl.RPS, rl.Burst)
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		pagesMW = append(pagesMW, limiter.Handler)
	}
	rhttp.MountRoutes(r, handlers, pagesMW...)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
