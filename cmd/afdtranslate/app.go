package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	afdtranslator "github.com/ferro-labs/afd-translator"
	"github.com/ferro-labs/afd-translator/internal/cache"
	"github.com/ferro-labs/afd-translator/internal/circuitbreaker"
	"github.com/ferro-labs/afd-translator/internal/logging"
	"github.com/ferro-labs/afd-translator/internal/metrics"
	"github.com/ferro-labs/afd-translator/internal/ratelimit"
	"github.com/ferro-labs/afd-translator/internal/requestlog"
	"github.com/ferro-labs/afd-translator/internal/translate"
	"github.com/ferro-labs/afd-translator/providers"
)

// connectorFor builds the upstream connector for cfg. Tests replace it.
var connectorFor = defaultConnector

func defaultConnector(cfg *afdtranslator.Config) translate.Connector {
	reg := providers.DefaultRegistry()
	opts := providers.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Region:  cfg.Upstream.Region,
		Timeout: cfg.Upstream.Timeout.Std(),
	}
	name := cfg.Upstream.Provider
	if name != afdtranslator.ProviderBedrock {
		return translate.RegistryConnector(reg, name, opts)
	}
	return func(apiKey string) (providers.Provider, error) {
		o := opts
		o.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		return translate.RegistryConnector(reg, name, o)(apiKey)
	}
}

// app holds the runtime components built from a Config.
type app struct {
	cfg        *afdtranslator.Config
	svc        *translate.Service
	local      *cache.Memory
	requestLog requestlog.Writer
	limiter    *ratelimit.Store
	closers    []func() error
}

func buildApp(ctx context.Context, cfg *afdtranslator.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.local = cache.NewMemory(cfg.Cache.TTL.Std(), cfg.Cache.SweepThreshold,
		cache.WithSweepHook(func(removed, remaining int) {
			metrics.CacheSweptTotal.Add(float64(removed))
			metrics.CacheEntries.Set(float64(remaining))
			logging.Logger.Info("cache sweep", "removed", removed, "remaining", remaining)
		}))
	var store cache.Store = a.local
	if cfg.Cache.RedisURL != "" {
		shared, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPrefix, cfg.Cache.TTL.Std())
		if err != nil {
			return nil, fmt.Errorf("shared cache: %w", err)
		}
		a.closers = append(a.closers, shared.Close)
		store = cache.NewTiered(a.local, shared)
	}

	var opts []translate.Option
	if cfg.CircuitBreaker.Enabled() {
		provider := cfg.Upstream.Provider
		metrics.CircuitBreakerState.WithLabelValues(provider).Set(float64(circuitbreaker.StateClosed))
		cb := circuitbreaker.New(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout.Std(),
			circuitbreaker.WithStateHook(func(s circuitbreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(provider).Set(float64(s))
				logging.Logger.Warn("circuit breaker state changed", "provider", provider, "state", s.String())
			}),
		)
		opts = append(opts, translate.WithBreaker(cb))
	}

	a.svc = translate.New(store, translate.EnvKey(cfg.Upstream.APIKeyEnv), connectorFor(cfg), translate.Config{
		Model:     cfg.Upstream.Model,
		MaxTokens: cfg.Upstream.MaxTokens,
		Timeout:   cfg.Upstream.Timeout.Std(),
		Retries:   cfg.Upstream.Retries,
	}, opts...)

	w, closeLog, err := requestlog.Open(cfg.RequestLog.Driver, cfg.RequestLog.DSN)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("request log: %w", err)
	}
	a.requestLog = w
	a.closers = append(a.closers, closeLog)

	if cfg.RateLimit.Enabled() {
		a.limiter = ratelimit.NewStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	return a, nil
}

// Close releases every resource opened by buildApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
