package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/guard/guardtest"
	"github.com/robert1948/localstorm-sub000/internal/stats"
)

func newGuardRouter(t *testing.T, mutate func(*guard.Config)) (chi.Router, *guard.Controller, *stats.Live) {
	t.Helper()
	live := stats.NewLive()
	ctrl := guardtest.New(t, mutate,
		guard.WithClock(func() time.Time { return guardtest.Base }),
		guard.WithDecisionSink(live),
		guard.WithEventSink(live))

	h := NewGuard(ctrl, live, nil)
	r := chi.NewRouter()
	r.Get("/guard/clients", h.ListClients)
	r.Get("/guard/blocks", h.ListBlocks)
	r.Delete("/guard/blocks/{key}", h.Unblock)
	r.Get("/guard/stats", h.Stats)
	r.Get("/guard/events", h.Events)
	return r, ctrl, live
}

func do(r chi.Router, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestGuardListClients(t *testing.T) {
	r, ctrl, _ := newGuardRouter(t, nil)

	rr := do(r, http.MethodGet, "/guard/clients")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ClientsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Clients)

	ctrl.Check(guardtest.Request("/api/data", "203.0.113.7:4000", guardtest.Base))
	ctrl.Check(guardtest.Request("/api/data", "203.0.113.8:4000", guardtest.Base))

	rr = do(r, http.MethodGet, "/guard/clients?limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rr = do(r, http.MethodGet, "/guard/clients?limit=frog")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_INPUT")
}

func TestGuardListAndLiftBlocks(t *testing.T) {
	r, ctrl, _ := newGuardRouter(t, func(cfg *guard.Config) {
		cfg.DDoS.BurstThreshold = 1
	})

	// A single request trips the burst threshold and earns a block.
	d := ctrl.Check(guardtest.Request("/api/data", "203.0.113.7:4000", guardtest.Base))
	require.False(t, d.Allowed)

	rr := do(r, http.MethodGet, "/guard/blocks")
	require.Equal(t, http.StatusOK, rr.Code)
	var blocks BlocksResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &blocks))
	require.Equal(t, 1, blocks.Count)
	assert.Equal(t, "203.0.113.7", blocks.Blocks[0].Key)
	assert.Equal(t, guard.ViolationBurst, blocks.Blocks[0].Reason)

	rr = do(r, http.MethodDelete, "/guard/blocks/203.0.113.7")
	require.Equal(t, http.StatusOK, rr.Code)
	var lifted UnblockResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lifted))
	assert.True(t, lifted.Unblocked)

	// Lifting again reports no active block.
	rr = do(r, http.MethodDelete, "/guard/blocks/203.0.113.7")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "NOT_FOUND")
}

func TestGuardStats(t *testing.T) {
	r, ctrl, _ := newGuardRouter(t, func(cfg *guard.Config) {
		cfg.Policies[guard.CategoryGeneral] = guard.RateLimitPolicy{CallsPerMinute: 1, CallsPerHour: 1000}
	})

	require.True(t, ctrl.Check(guardtest.Request("/api/data", "203.0.113.7:4000", guardtest.Base)).Allowed)
	require.False(t, ctrl.Check(guardtest.Request("/api/data", "203.0.113.7:4000", guardtest.Base.Add(time.Second))).Allowed)

	rr := do(r, http.MethodGet, "/guard/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Engine.TrackedClients)
	require.NotNil(t, resp.Decisions)
	assert.Equal(t, int64(1), resp.Decisions.Allowed)
	assert.Equal(t, int64(1), resp.Decisions.Denied)
	assert.Equal(t, int64(1), resp.Decisions.ByReason[guard.ReasonRateLimitMinute])
}

func TestGuardEventsWithoutStore(t *testing.T) {
	r, _, _ := newGuardRouter(t, nil)

	rr := do(r, http.MethodGet, "/guard/events")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "SERVICE_UNAVAILABLE")
}
