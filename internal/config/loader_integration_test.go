package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Tests in this file run the whole LoadFrom pipeline against real files:
// defaults < YAML < environment, then validation.

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearBackendEnv keeps the developer's shell from leaking into a test.
func clearBackendEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RECALL_STORE_BACKEND", "REDIS_URL", "NATS_URL", "DATABASE_URL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFrom_FullFile(t *testing.T) {
	clearBackendEnv(t)
	path := writeYAML(t, `
server:
  port: "9090"
  rate_limit:
    rps: 1.5
    burst: 3
store:
  backend: nats
nats:
  url: nats://nats:4222
  bucket: PAGES
fetch:
  timeout: 2s
  max_concurrent: 8
  oauth2:
    token_url: https://auth.example.com/token
    client_id: recall
    scopes: [pages.read]
cache:
  l1_max_size_mb: 32
  l1_expire: 500ms
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.RateLimit.RPS != 1.5 || cfg.Server.RateLimit.Burst != 3 {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Store.Backend != BackendNATS || cfg.NATS.URL != "nats://nats:4222" || cfg.NATS.Bucket != "PAGES" {
		t.Errorf("store section not applied: backend=%s nats=%+v", cfg.Store.Backend, cfg.NATS)
	}
	if cfg.Fetch.Timeout != 2*time.Second || cfg.Fetch.MaxConcurrent != 8 {
		t.Errorf("fetch section not applied: %+v", cfg.Fetch)
	}
	if cfg.Fetch.OAuth2.ClientID != "recall" || len(cfg.Fetch.OAuth2.Scopes) != 1 {
		t.Errorf("oauth2 section not applied: %+v", cfg.Fetch.OAuth2)
	}
	if cfg.Cache.L1MaxSizeMB != 32 || cfg.Cache.L1Expire != 500*time.Millisecond {
		t.Errorf("cache section not applied: %+v", cfg.Cache)
	}
	// Untouched sections keep their defaults.
	if cfg.Fetch.UserAgent != "recall/0.1" || cfg.Postgres.MaxConns != 10 {
		t.Errorf("defaults lost: user_agent=%q max_conns=%d", cfg.Fetch.UserAgent, cfg.Postgres.MaxConns)
	}
}

func TestLoadFrom_EnvSwitchesBackend(t *testing.T) {
	clearBackendEnv(t)
	path := writeYAML(t, `
store:
  backend: nats
`)
	t.Setenv("RECALL_STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store.Backend != BackendRedis {
		t.Errorf("env should override YAML: got backend %q", cfg.Store.Backend)
	}
	if cfg.Redis.URL != "redis://cache:6379/2" {
		t.Errorf("got redis url %q", cfg.Redis.URL)
	}
}

func TestLoadFrom_InvalidEnvIgnored(t *testing.T) {
	clearBackendEnv(t)
	path := writeYAML(t, "")

	t.Setenv("RECALL_FETCH_MAX_CONCURRENT", "lots")
	t.Setenv("RECALL_RATE_LIMIT_RPS", "fast")
	t.Setenv("RECALL_CACHE_L1_EXPIRE", "soon")
	t.Setenv("RECALL_LOG_ASYNC", "maybe")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Fetch.MaxConcurrent != 16 {
		t.Errorf("invalid int env should be ignored, got %d", cfg.Fetch.MaxConcurrent)
	}
	if cfg.Server.RateLimit.RPS != 10 {
		t.Errorf("invalid float env should be ignored, got %v", cfg.Server.RateLimit.RPS)
	}
	if cfg.Cache.L1Expire != time.Second {
		t.Errorf("invalid duration env should be ignored, got %v", cfg.Cache.L1Expire)
	}
	if cfg.Logging.Async {
		t.Error("invalid bool env should be ignored")
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	clearBackendEnv(t)
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing YAML should not error, got %v", err)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Server.Port != "8080" {
		t.Errorf("expected defaults, got backend=%q port=%q", cfg.Store.Backend, cfg.Server.Port)
	}
}

func TestLoadFrom_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed yaml", "{{{not yaml", "config yaml"},
		{"unknown backend", "store:\n  backend: etcd\n", "is not one of"},
		{"redis without url", "store:\n  backend: redis\n", "redis.url is required"},
		{"negative l1 size", "cache:\n  l1_max_size_mb: -1\n", "cache.l1_max_size_mb"},
		{"burst missing", "server:\n  rate_limit:\n    rps: 5\n    burst: 0\n", "burst must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearBackendEnv(t)
			_, err := LoadFrom(writeYAML(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
