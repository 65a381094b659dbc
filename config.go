// Package afdtranslator holds the configuration of the AFD translator service:
// where it listens, which upstream generates translations, and how the
// translation cache and optional guards behave.
package afdtranslator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in upstream.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderBedrock   = "bedrock"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultAddr           = ":8080"
	DefaultPath           = "/api/translate"
	DefaultModel          = "claude-3-5-haiku-latest"
	DefaultMaxTokens      = 1024
	DefaultTimeout        = 60 * time.Second
	DefaultCacheTTL       = time.Hour
	DefaultSweepThreshold = 500
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Config holds the configuration for the translator.
type Config struct {
	Server         ServerConfig         `json:"server" yaml:"server"`
	Upstream       UpstreamConfig       `json:"upstream" yaml:"upstream"`
	Cache          CacheConfig          `json:"cache" yaml:"cache"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	RequestLog     RequestLogConfig     `json:"request_log" yaml:"request_log"`
	Log            LogConfig            `json:"log" yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// Path is where the translate handler is mounted.
	Path        string   `json:"path" yaml:"path"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// UpstreamConfig selects and tunes the generation provider.
type UpstreamConfig struct {
	Provider  string `json:"provider" yaml:"provider"`
	Model     string `json:"model" yaml:"model"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Region is only read by the bedrock provider.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// APIKeyEnv names the environment variable holding the credential. It is
	// read on every cache miss, never at startup.
	APIKeyEnv string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	Retries   int      `json:"retries" yaml:"retries"`
}

// CacheConfig controls the translation cache.
type CacheConfig struct {
	TTL            Duration `json:"ttl" yaml:"ttl"`
	SweepThreshold int      `json:"sweep_threshold" yaml:"sweep_threshold"`
	// RedisURL enables the shared tier when set.
	RedisURL    string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
}

// CircuitBreakerConfig guards the upstream. FailureThreshold 0 disables it.
type CircuitBreakerConfig struct {
	FailureThreshold int      `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int      `json:"success_threshold" yaml:"success_threshold"`
	Timeout          Duration `json:"timeout" yaml:"timeout"`
}

// Enabled reports whether the breaker should be installed.
func (c CircuitBreakerConfig) Enabled() bool { return c.FailureThreshold > 0 }

// RateLimitConfig limits requests per client IP. RequestsPerSecond 0
// disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             float64 `json:"burst" yaml:"burst"`
}

// Enabled reports whether the limiter should be installed.
func (c RateLimitConfig) Enabled() bool { return c.RequestsPerSecond > 0 }

// RequestLogConfig selects the audit store. An empty Driver disables it.
type RequestLogConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultAPIKeyEnv returns the credential variable conventionally used by
// provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderBedrock:
		return "AWS_ACCESS_KEY_ID"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// DefaultModelFor returns the model used when upstream.model is unset.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderBedrock:
		return "anthropic.claude-3-5-haiku-20241022-v1:0"
	default:
		return DefaultModel
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	c.Upstream.Provider = strings.ToLower(strings.TrimSpace(c.Upstream.Provider))
	if c.Upstream.Provider == "" {
		c.Upstream.Provider = ProviderAnthropic
	}
	if c.Upstream.Model == "" {
		c.Upstream.Model = DefaultModelFor(c.Upstream.Provider)
	}
	if c.Upstream.MaxTokens == 0 {
		c.Upstream.MaxTokens = DefaultMaxTokens
	}
	if c.Upstream.APIKeyEnv == "" {
		c.Upstream.APIKeyEnv = DefaultAPIKeyEnv(c.Upstream.Provider)
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = Duration(DefaultTimeout)
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Cache.SweepThreshold == 0 {
		c.Cache.SweepThreshold = DefaultSweepThreshold
	}

	if c.CircuitBreaker.Enabled() {
		if c.CircuitBreaker.SuccessThreshold == 0 {
			c.CircuitBreaker.SuccessThreshold = 1
		}
		if c.CircuitBreaker.Timeout == 0 {
			c.CircuitBreaker.Timeout = Duration(30 * time.Second)
		}
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Duration is a time.Duration written as a Go duration string ("90s",
// "1h") in config files. Plain numbers are read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!int" || node.Tag == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		return d.set(secs)
	}
	return d.set(node.Value)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case float64:
		*d = Duration(val * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
}
