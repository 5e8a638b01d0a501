// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package api serves the operational HTTP surface: health probes,
// Prometheus metrics, a read-only view of active clusters, and the
// live alert feed. It is an operator interface, not a public API; the
// webhook remains the alerting channel of record.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/websocket"
)

// Store is the read-only persistence surface the API serves from.
// Implemented by the DuckDB store.
type Store interface {
	Ping(ctx context.Context) error
	ActiveClusters(ctx context.Context) ([]*models.Cluster, error)
	ReportCount(ctx context.Context) (int64, error)
}

const shutdownTimeout = 10 * time.Second

// Config holds server settings.
type Config struct {
	// ListenAddr is the bind address, e.g. ":8421".
	ListenAddr string

	// RateLimit is the per-IP request budget per minute. Default 120.
	RateLimit int
}

// Server is the ops HTTP server. It implements suture.Service.
type Server struct {
	cfg     Config
	store   Store
	hub     *websocket.Hub
	handler http.Handler

	// degraded reports reduced extraction capability for /readyz.
	degraded func() bool
}

// NewServer builds the server and its route table.
func NewServer(cfg Config, st Store, hub *websocket.Hub, degraded func() bool) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	s := &Server{cfg: cfg, store: st, hub: hub, degraded: degraded}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(requestMetrics)

	// Health probes get a generous budget so orchestration can poll
	// frequently without tripping the limiter.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/healthz", s.healthLive)
		r.Get("/readyz", s.healthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		r.Get("/clusters", s.clusters)
		r.Get("/status", s.status)
		r.Get("/alerts/ws", s.alertFeed)
	})

	return r
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "http-server" }

// Serve runs the HTTP server until the context is canceled, then
// shuts it down with a bounded grace period.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http server shutdown incomplete")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info().Msg("http server stopped")
	return ctx.Err()
}
