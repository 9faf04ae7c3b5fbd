// Package api exposes the gateway over HTTP: the evaluate route, the
// monitoring surface, auth, and the Prometheus endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"warden/internal/auth"
	"warden/internal/cache"
	"warden/internal/config"
	"warden/internal/metrics"
	"warden/internal/ratelimit"
	"warden/internal/tower"
)

// Version is stamped into health responses; overridden at build time.
var Version = "dev"

// CacheStatter is the slice of the Tier-3 agent the monitoring surface
// needs. Nil when Tier 3 is disabled.
type CacheStatter interface {
	CacheStats() cache.Stats
}

// Deps carries the wired gateway components. Tower, Auth, and Logger
// are required; the rest may be nil.
type Deps struct {
	Tower      *tower.Tower
	Auth       *auth.Authenticator
	Limiter    *ratelimit.Limiter
	Cache      CacheStatter
	Collectors *metrics.Collectors
	Logger     *zap.Logger
}

// Server is the HTTP front of the gateway.
type Server struct {
	http          *http.Server
	deps          Deps
	requestBudget time.Duration
	logger        *zap.Logger
}

// NewServer wires the route table and middleware chain.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Tower == nil {
		return nil, fmt.Errorf("api server requires a control tower")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("api server requires an authenticator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		deps:          deps,
		requestBudget: cfg.Detection.RequestBudget,
		logger:        logger,
	}

	r := mux.NewRouter()
	r.Use(s.logging)
	if deps.Collectors != nil {
		r.Use(s.instrument)
	}

	// Unauthenticated surface.
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods(http.MethodPost)

	// Authenticated surface.
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authenticate)
	v1.HandleFunc("/evaluate", s.rateLimited(s.handleEvaluate)).Methods(http.MethodPost)
	v1.HandleFunc("/monitoring/tiers", s.handleTierStats).Methods(http.MethodGet)
	v1.HandleFunc("/monitoring/cache", s.handleCacheStats).Methods(http.MethodGet)
	v1.HandleFunc("/admin/reset-stats", s.adminOnly(s.handleResetStats)).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is canceled, then drains connections within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return <-errCh
}
