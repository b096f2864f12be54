package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/robert1948/localstorm-sub000/internal/config"
	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/guard/guardtest"
)

func newTestServer(t *testing.T, cfg config.ServerConfig, mutate func(*guard.Config)) *Server {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8030
	}

	ctrl := guardtest.New(t, mutate)
	srv, err := New(cfg, Options{Guard: ctrl})
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return srv
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	if body := decodeErrorBody(t, rec); body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}

	// Unknown paths run through admission before the 404, so the rate
	// limit headers must be present.
	if rec.Header().Get(guard.HeaderLimitMinute) == "" {
		t.Fatal("expected rate limit headers on guarded surface")
	}
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}

	if body := decodeErrorBody(t, rec); body.Error.Code != "METHOD_NOT_ALLOWED" {
		t.Fatalf("expected error code METHOD_NOT_ALLOWED, got %s", body.Error.Code)
	}
}

func TestServerHealthStaysOutsideAdmission(t *testing.T) {
	// A burst threshold of one blocks the very first guarded request, so a
	// clean health probe proves the operational surface skips admission.
	srv := newTestServer(t, config.ServerConfig{}, func(cfg *guard.Config) {
		cfg.DDoS.BurstThreshold = 1
	})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get(guard.HeaderLimitMinute) != "" {
		t.Fatal("expected no rate limit headers on health probe")
	}
}

func TestServerDeniesOverLimit(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, func(cfg *guard.Config) {
		cfg.Policies[guard.CategoryGeneral] = guard.RateLimitPolicy{CallsPerMinute: 1, CallsPerHour: 1000}
	})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	if first.Code != http.StatusNotFound {
		t.Fatalf("expected standalone 404 for admitted request, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on denial")
	}

	var denial guard.DenialBody
	if err := json.NewDecoder(second.Body).Decode(&denial); err != nil {
		t.Fatalf("failed to decode denial body: %v", err)
	}
	if denial.Error != guard.ReasonRateLimitMinute {
		t.Fatalf("expected rate_limit_minute denial, got %s", denial.Error)
	}
}

func TestServerAdminDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/guard/stats", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	// Without a token the admin routes are never registered; the path falls
	// to the guarded catch-all.
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestServerAdminRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{AdminToken: "secret"}, nil)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"malformed", "secret", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guard/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusUnauthorized {
				if body := decodeErrorBody(t, rec); body.Error.Code != "UNAUTHORIZED" {
					t.Fatalf("expected error code UNAUTHORIZED, got %s", body.Error.Code)
				}
			}
		})
	}
}

func TestServerProxiesAdmittedRequests(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream-ok"))
	}))
	defer upstream.Close()

	srv := newTestServer(t, config.ServerConfig{UpstreamURL: upstream.URL}, func(cfg *guard.Config) {
		cfg.Policies[guard.CategoryGeneral] = guard.RateLimitPolicy{CallsPerMinute: 1, CallsPerHour: 1000}
	})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200 from upstream, got %d", first.Code)
	}
	if got := first.Body.String(); got != "upstream-ok" {
		t.Fatalf("expected upstream body, got %q", got)
	}
	if first.Header().Get("X-Upstream") != "yes" {
		t.Fatal("expected upstream response header to pass through")
	}
	if first.Header().Get(guard.HeaderLimitMinute) == "" {
		t.Fatal("expected rate limit headers on proxied response")
	}

	// The second request breaches the one-per-minute policy and must be
	// denied before it reaches the upstream.
	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected exactly one upstream hit, got %d", got)
	}
}
