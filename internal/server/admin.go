package server

import (
	"SparkLedger/internal/observability"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AdminHandler returns the operator router: metrics, probes, and the live
// websocket feed. feed may be nil.
func AdminHandler(gatherer prometheus.Gatherer, health *observability.HealthChecker, feed http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)

	if feed != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/feed", feed.ServeHTTP)
		})
	}
	return r
}

// ServeAdmin runs the admin router on addr until ctx is cancelled.
func ServeAdmin(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("admin server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
