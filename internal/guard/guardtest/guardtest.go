// Package guardtest provides fixtures for tests that need a working
// admission engine without repeating its setup.
package guardtest

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// Base is the instant fixture requests anchor their windows to.
var Base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Config returns an engine config for tests: defaults with background
// sweeping off, so nothing moves unless the test drives it.
func Config() guard.Config {
	cfg := guard.DefaultConfig()
	cfg.SweepInterval = 0
	return cfg
}

// New builds a controller from Config, applies mutate on top, and ties
// shutdown to the test.
func New(t testing.TB, mutate func(*guard.Config), opts ...guard.Option) *guard.Controller {
	t.Helper()
	cfg := Config()
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := guard.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

// BrowserHeader returns a header set that scores zero with the pattern
// analyzer.
func BrowserHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	return h
}

// Request builds a clean descriptor for path from addr at the given instant.
func Request(path, addr string, at time.Time) guard.Request {
	return guard.Request{
		Method:     http.MethodGet,
		Path:       path,
		Header:     BrowserHeader(),
		RemoteAddr: addr,
		ReceivedAt: at,
	}
}
