package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/server/handlers"
	servermw "github.com/robert1948/localstorm-sub000/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() error {
	// Operational surface. These stay outside admission so load balancer
	// probes and operators keep access while an address is blocked; probe
	// sources are typically on the allowlist anyway.
	s.router.Get("/health", s.opts.Health.HealthHandler)
	s.router.Get("/health/live", s.opts.Health.LivenessHandler)
	s.router.Get("/health/ready", s.opts.Health.ReadinessHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint, served straight from the dedicated registry
	if s.opts.GuardMetrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.GuardMetrics.Handler())
	}

	// Admin inspection endpoints (optional, requires server.admin_token)
	s.registerAdminRoutes()

	// Everything else runs through admission.
	return s.registerGuardedSurface()
}

// registerAdminRoutes optionally registers the /guard inspection surface.
func (s *Server) registerAdminRoutes() {
	token := s.cfg.AdminToken
	logger := s.opts.Logger

	if token == "" {
		logger.Debug("Guard admin endpoints disabled (no server.admin_token set)")
		return
	}

	g := handlers.NewGuard(s.opts.Guard, s.opts.Live, s.opts.Audit)
	s.router.Route("/guard", func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Get("/clients", g.ListClients)
		r.Get("/blocks", g.ListBlocks)
		r.Delete("/blocks/{key}", g.Unblock)
		r.Get("/stats", g.Stats)
		r.Get("/events", g.Events)
	})

	logger.Info("Guard admin endpoints enabled",
		zap.String("path", "/guard"),
		zap.String("auth", "bearer token"))
	logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
}

// registerGuardedSurface mounts the catch-all route behind the admission
// middleware: either a reverse proxy to the configured upstream, or a 404
// responder in standalone mode. Unknown paths still pass through admission
// first, so probing for routes costs the same as hitting real ones.
func (s *Server) registerGuardedSurface() error {
	admit := servermw.Admission(s.opts.Guard, s.opts.Logger, s.decisionObserver())

	var terminal http.Handler
	if s.cfg.UpstreamURL != "" {
		target, err := url.Parse(s.cfg.UpstreamURL)
		if err != nil {
			return fmt.Errorf("server: parse upstream_url: %w", err)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			s.opts.Logger.Warn("Upstream proxy error",
				zap.String("upstream", target.String()),
				zap.Error(err))
			HandleError(w, r, apperrors.NewBadGatewayError("Upstream unavailable"))
		}
		terminal = proxy
	} else {
		terminal = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, r, apperrors.NewNotFoundError("The requested resource was not found"))
		})
	}

	s.router.Group(func(r chi.Router) {
		r.Use(admit)
		r.Handle("/*", terminal)
	})
	return nil
}

// decisionObserver feeds admission latency into the metrics registry when
// metrics are enabled.
func (s *Server) decisionObserver() func(time.Duration) {
	if s.opts.GuardMetrics == nil {
		return nil
	}
	return s.opts.GuardMetrics.ObserveDecisionDuration
}

// bearerAuth admits only requests carrying the configured bearer token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				HandleError(w, r, apperrors.NewUnauthorizedError("Missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
