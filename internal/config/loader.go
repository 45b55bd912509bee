package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "recall.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RECALL_PORT")
	setFloat64(&cfg.Server.RateLimit.RPS, "RECALL_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimit.Burst, "RECALL_RATE_LIMIT_BURST")
	setString(&cfg.Store.Backend, "RECALL_STORE_BACKEND")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Bucket, "RECALL_NATS_BUCKET")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RECALL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RECALL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RECALL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RECALL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RECALL_PG_HEALTH_CHECK")
	setString(&cfg.Logging.Level, "RECALL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RECALL_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RECALL_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "RECALL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RECALL_BREAKER_TIMEOUT")

	// Fetch
	setDuration(&cfg.Fetch.Timeout, "RECALL_FETCH_TIMEOUT")
	setString(&cfg.Fetch.UserAgent, "RECALL_FETCH_USER_AGENT")
	setInt(&cfg.Fetch.MaxConcurrent, "RECALL_FETCH_MAX_CONCURRENT")
	setString(&cfg.Fetch.OAuth2.TokenURL, "RECALL_OAUTH2_TOKEN_URL")
	setString(&cfg.Fetch.OAuth2.ClientID, "RECALL_OAUTH2_CLIENT_ID")
	setString(&cfg.Fetch.OAuth2.ClientSecret, "RECALL_OAUTH2_CLIENT_SECRET")
	setStrings(&cfg.Fetch.OAuth2.Scopes, "RECALL_OAUTH2_SCOPES")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "RECALL_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1Expire, "RECALL_CACHE_L1_EXPIRE")

	// Telemetry
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "RECALL_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimit.RPS < 0 {
		return errors.New("server.rate_limit.rps must be >= 0")
	}
	if cfg.Server.RateLimit.RPS > 0 && cfg.Server.RateLimit.Burst < 1 {
		return errors.New("server.rate_limit.burst must be >= 1 when rps is set")
	}
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for the redis backend")
		}
	case BackendNATS:
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the nats backend")
		}
		if cfg.NATS.Bucket == "" {
			return errors.New("nats.bucket is required for the nats backend")
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, redis, nats, postgres", cfg.Store.Backend)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be positive")
	}
	if cfg.Fetch.MaxConcurrent < 1 {
		return errors.New("fetch.max_concurrent must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 0 {
		return errors.New("cache.l1_max_size_mb must be >= 0")
	}
	if cfg.Fetch.OAuth2.TokenURL != "" && cfg.Fetch.OAuth2.ClientID == "" {
		return errors.New("fetch.oauth2.client_id is required when token_url is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated env value.
func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
