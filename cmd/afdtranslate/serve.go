package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ferro-labs/afd-translator/internal/logging"
	"github.com/ferro-labs/afd-translator/internal/ratelimit"
	"github.com/ferro-labs/afd-translator/internal/translate"
	"github.com/ferro-labs/afd-translator/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translate endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd, false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logging.Logger.Error("close resources", "error", err)
				}
			}()

			// Writes must outlast every upstream attempt plus backoff.
			upstreamBudget := cfg.Upstream.Timeout.Std() * time.Duration(cfg.Upstream.Retries+1)
			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      newRouter(a),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: upstreamBudget + 30*time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				logging.Logger.Info("shutting down gracefully")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Logger.Error("shutdown error", "error", err)
				}
			}()

			logging.Logger.Info("afd translator listening",
				"version", version.Short(),
				"addr", cfg.Server.Addr,
				"path", cfg.Server.Path,
				"provider", cfg.Upstream.Provider,
				"model", cfg.Upstream.Model,
				"shared_cache", cfg.Cache.RedisURL != "",
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logging.Logger.Info("server stopped")
			return nil
		},
	}
}

// newRouter builds the HTTP router.
func newRouter(a *app) http.Handler {
	cfg := a.cfg

	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version.Short(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	handler := translate.NewHandler(a.svc,
		translate.WithAllowedOrigins(cfg.Server.CORSOrigins...),
		translate.WithRequestLog(a.requestLog),
		translate.WithUpstreamLabel(cfg.Upstream.Provider, cfg.Upstream.Model),
	)

	// CORS runs ahead of the limiter so 429 answers stay readable by browsers.
	route := r.With(translate.CORS(cfg.Server.CORSOrigins...))
	if a.limiter != nil {
		route = route.With(ratelimit.Middleware(a.limiter))
	}
	route.Handle(cfg.Server.Path, handler)

	return r
}
