package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry(), "stormguard")

	m.ObserveRequest(http.MethodGet, "/api/*", http.StatusOK, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/*", http.StatusTooManyRequests, time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/guard/blocks/{key}", http.StatusInternalServerError, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/*", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/*", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/*", "client_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/guard/blocks/{key}", "server_error")))
}

func TestTrackInFlight(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry(), "stormguard")

	done := m.TrackInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestRecordPanic(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry(), "stormguard")

	m.RecordPanic()
	m.RecordPanic()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.panics))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *HTTP
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, 0)
	m.TrackInFlight()()
	m.RecordPanic()
}
