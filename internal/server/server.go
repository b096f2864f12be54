package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/config"
	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/metrics"
	"github.com/robert1948/localstorm-sub000/internal/observability"
	"github.com/robert1948/localstorm-sub000/internal/server/handlers"
	servermw "github.com/robert1948/localstorm-sub000/internal/server/middleware"
	"github.com/robert1948/localstorm-sub000/internal/stats"
	"github.com/robert1948/localstorm-sub000/internal/store"
)

// Options carries the dependencies the router wires together. Guard is
// required; everything else is optional and degrades to a reduced surface
// when nil.
type Options struct {
	Guard        *guard.Controller
	Health       *handlers.HealthManager
	Live         *stats.Live
	Audit        *store.Store
	GuardMetrics *observability.GuardMetrics
	HTTPMetrics  *metrics.HTTP
	Logger       *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	opts   Options
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Guard == nil {
		return nil, fmt.Errorf("server: guard controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	r := chi.NewRouter()

	// Custom middleware in correct order (RequestID, AccessLog, Recovery).
	// Admission is applied per route group in registerRoutes, so health
	// probes and the admin surface stay reachable while a caller is blocked.
	//
	// chi's RealIP middleware is deliberately absent: it rewrites RemoteAddr
	// from forwarding headers unconditionally, and those headers are only
	// honored for configured trusted proxies inside the engine's identity
	// resolver.
	r.Use(servermw.RequestID)
	r.Use(servermw.AccessLog(opts.Logger, opts.HTTPMetrics))
	r.Use(servermw.Recovery(opts.Logger, opts.HTTPMetrics))

	// Standardized error responses using the centralized HandleError
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		opts:   opts,
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.cfg.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.opts.Logger.Info("Starting HTTP server",
		zap.String("addr", addr),
		zap.String("upstream", s.cfg.UpstreamURL))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Logger.Info("Shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the host:port the server binds to.
func (s *Server) Addr() string {
	return s.cfg.Addr()
}
