package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/guard/guardtest"
)

func newAdmissionHandler(t *testing.T, mutate func(*guard.Config)) (http.Handler, *guard.Controller) {
	t.Helper()
	ctrl := guardtest.New(t, mutate)
	handler := Admission(ctrl, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	return handler, ctrl
}

func doGet(handler http.Handler, path, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header = guardtest.BrowserHeader()
	req.RemoteAddr = addr
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAdmissionAllowsAndAnnotates(t *testing.T) {
	handler, _ := newAdmissionHandler(t, nil)

	rr := doGet(handler, "/api/data", "203.0.113.7:4000")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "general", rr.Header().Get(guard.HeaderRateLimitType))
	assert.Equal(t, "60", rr.Header().Get(guard.HeaderLimitMinute))
	assert.Equal(t, "59", rr.Header().Get(guard.HeaderRemainingMinute))
	assert.Equal(t, "active", rr.Header().Get(guard.HeaderDDoSProtection))
	assert.Equal(t, "allowed", rr.Header().Get(guard.HeaderBlockStatus))
}

func TestAdmissionDeniesWithEnvelope(t *testing.T) {
	handler, _ := newAdmissionHandler(t, func(cfg *guard.Config) {
		cfg.Policies[guard.CategoryGeneral] = guard.RateLimitPolicy{CallsPerMinute: 1, CallsPerHour: 1000}
	})

	require.Equal(t, http.StatusOK, doGet(handler, "/api/data", "203.0.113.7:4000").Code)

	rr := doGet(handler, "/api/data", "203.0.113.7:4000")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "0", rr.Header().Get(guard.HeaderRemainingMinute))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var body guard.DenialBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Positive(t, body.RetryAfterSeconds)
}

func TestAdmissionBypassHasNoHeaders(t *testing.T) {
	handler, ctrl := newAdmissionHandler(t, nil)

	rr := doGet(handler, "/health", "203.0.113.7:4000")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get(guard.HeaderRateLimitType))
	assert.Equal(t, 0, ctrl.TrackedClients())
}

func TestAdmissionRecordsOutcome(t *testing.T) {
	ctrl := guardtest.New(t, nil)
	handler := Admission(ctrl, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for i := 0; i < 5; i++ {
		rr := doGet(handler, "/api/auth/login", "203.0.113.7:4000")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	snap, ok := ctrl.SnapshotClient("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, 5, snap.AuthFailures)
	// The fifth consecutive failure costs a suspicious-pattern penalty.
	assert.Equal(t, -3, snap.Reputation)
}

func TestAdmissionObservesLatency(t *testing.T) {
	ctrl := guardtest.New(t, nil)
	var observed []time.Duration
	handler := Admission(ctrl, nil, func(d time.Duration) {
		observed = append(observed, d)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	doGet(handler, "/api/data", "203.0.113.7:4000")
	require.Len(t, observed, 1)
}

func TestAdmissionBlockedClient(t *testing.T) {
	handler, ctrl := newAdmissionHandler(t, func(cfg *guard.Config) {
		cfg.DDoS.BurstThreshold = 2
	})
	addr := "203.0.113.7:4000"

	require.Equal(t, http.StatusOK, doGet(handler, "/api/data", addr).Code)

	rr := doGet(handler, "/api/data", addr)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "blocked", rr.Header().Get(guard.HeaderBlockStatus))

	var body guard.DenialBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "temporarily_blocked", body.Error)

	blocks := ctrl.SnapshotBlocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "203.0.113.7", blocks[0].Key)
}
