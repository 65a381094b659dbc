package afdtranslator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvPort       = "PORT"
	EnvConfigPath = "CONFIG_PATH"
	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFormat  = "LOG_FORMAT"
	EnvCORS       = "CORS_ORIGINS"
	EnvRedisURL   = "REDIS_URL"
	EnvProvider   = "TRANSLATOR_PROVIDER"
	EnvModel      = "TRANSLATOR_MODEL"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// Load builds the effective configuration: the file at path (skipped when
// path is empty), then environment overrides from getenv, then defaults.
// The result is validated.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	ApplyEnv(cfg, getenv)
	cfg.ApplyDefaults()
	if err := ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvPort)); v != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvLogFormat)); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(getenv(EnvCORS)); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv(EnvRedisURL)); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := strings.TrimSpace(getenv(EnvProvider)); v != "" {
		cfg.Upstream.Provider = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		cfg.Upstream.Model = v
	}
}

// ValidateConfig validates a Config for correctness. It expects defaults to
// have been applied.
func ValidateConfig(cfg Config) error {
	switch cfg.Upstream.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderBedrock:
	default:
		return fmt.Errorf("unknown upstream provider: %q", cfg.Upstream.Provider)
	}

	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /: %q", cfg.Server.Path)
	}
	if cfg.Upstream.MaxTokens < 0 {
		return fmt.Errorf("upstream.max_tokens must not be negative")
	}
	if cfg.Upstream.Retries < 0 {
		return fmt.Errorf("upstream.retries must not be negative")
	}
	if cfg.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if cfg.Cache.SweepThreshold < 0 {
		return fmt.Errorf("cache.sweep_threshold must not be negative")
	}
	if cfg.CircuitBreaker.FailureThreshold < 0 || cfg.CircuitBreaker.SuccessThreshold < 0 {
		return fmt.Errorf("circuit_breaker thresholds must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	switch strings.ToLower(cfg.RequestLog.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown request_log driver: %q", cfg.RequestLog.Driver)
	}
	if strings.EqualFold(cfg.RequestLog.Driver, "postgres") && cfg.RequestLog.DSN == "" {
		return fmt.Errorf("request_log driver postgres requires a dsn")
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Log.Format)
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
