// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the operational HTTP endpoints: liveness, readiness
// and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ManuGH/astrogate/internal/api/middleware"
	"github.com/ManuGH/astrogate/internal/health"
	"github.com/ManuGH/astrogate/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Config controls the listener and middleware stack.
type Config struct {
	ListenAddr string
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit       int
	Tracing         bool
	ShutdownTimeout time.Duration
}

// Server owns the router and the HTTP listener.
type Server struct {
	cfg    Config
	router chi.Router
	logger zerolog.Logger
}

// New builds the router. Metrics are served from gatherer, or from the
// default registry when nil.
func New(cfg Config, hm *health.Manager, gatherer prometheus.Gatherer) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	stack := middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
		RateLimit:     cfg.RateLimit,
	}
	if cfg.Tracing {
		stack.TracingService = "astrogate/api"
	}

	r := middleware.NewRouter(stack)
	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		cfg:    cfg,
		router: r,
		logger: log.WithComponent("api"),
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(log.FieldEvent, "api.listening").
			Str("addr", ln.Addr().String()).
			Msg("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Str(log.FieldEvent, "api.shutdown").Msg("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}
