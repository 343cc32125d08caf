package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/config"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/health"
	middleware "github.com/mohammed-shakir/featureinfo-service/internal/core/middleware"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/router"
)

// Deps are the collaborators mounted on the router.
type Deps struct {
	Handler  router.QueryHandler
	Verifier *auth.Verifier
	Checks   map[string]health.Check
	// served on /metrics; the default prometheus registry when nil
	Metrics http.Handler
}

// NewRouter mounts probes, metrics and the feature info endpoint. Every
// path not claimed by a probe is a service name.
func NewRouter(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/ready", health.Readiness(2*time.Second, d.Checks))
	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(middleware.Identity(logger, d.Verifier))
		q := router.HandleQuery(logger, d.Handler)
		r.Get("/*", q)
		r.Post("/*", q)
	})
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
