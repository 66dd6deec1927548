// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/fundme/internal/auth"
	"github.com/pendergraft/fundme/internal/config"
	deploymentsDomain "github.com/pendergraft/fundme/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/fundme/internal/deployments/transport"
	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/ledger/transport"
	"github.com/pendergraft/fundme/internal/middleware/logging"
	"github.com/pendergraft/fundme/internal/middleware/ratelimit"
	"github.com/pendergraft/fundme/internal/middleware/realip"
	"github.com/pendergraft/fundme/internal/middleware/security"
	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/observability/metrics"
)

// Store is what the HTTP layer needs from storage.
type Store interface {
	auth.KeyValidator
	deploymentsDomain.Store
	Ping(ctx context.Context) error
}

// Server is the HTTP server
type Server struct {
	cfg     *config.Config
	store   Store
	ledger  domain.Service
	deploys deploymentsDomain.Service
	logger  *slog.Logger
	version string
	router  *chi.Mux

	stopLimiter func()
}

// Option configures a Server.
type Option func(*options)

type options struct {
	networks *networks.Table
}

// WithNetworks sets the network table deployment history lookups are
// checked against. The built-in table is used otherwise.
func WithNetworks(table *networks.Table) Option {
	return func(o *options) { o.networks = table }
}

// New creates a new server around an already deployed ledger service.
func New(cfg *config.Config, store Store, ledger domain.Service, logger *slog.Logger, version string, opts ...Option) *Server {
	o := options{networks: networks.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		deploys: deploymentsDomain.NewService(store, o.networks),
		logger:  logger,
		version: version,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background work owned by the middleware chain.
func (s *Server) Close() {
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
}

func (s *Server) setupMiddleware() {
	// Client IP first: the filter, limiter and logger all read it.
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))
	s.router.Use(security.Filter(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySize(s.cfg.Security.MaxBodySizeKB))
	s.router.Use(security.RequireJSON)

	// Authenticate before limiting so keyed callers get a per-account bucket.
	s.router.Use(auth.OptionalMiddleware(s.store))
	limiter, stop := ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	})
	s.stopLimiter = stop
	s.router.Use(limiter)

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Get("/version", s.handleVersion)

	if s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, metrics.Handler())
	}

	ledgerHandler := transport.NewHandler(s.ledger)

	s.router.Route("/api/v1/ledger", func(r chi.Router) {
		ledgerHandler.RegisterReadRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.store, transport.WriteError))
			ledgerHandler.RegisterWriteRoutes(r)
		})
	})

	s.router.Route("/api/v1/deployments", deploymentsTransport.NewHandler(s.deploys).RegisterReadRoutes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether storage is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
