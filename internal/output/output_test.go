package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/stats"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleClients() []guard.ClientSnapshot {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []guard.ClientSnapshot{
		{
			Key:              "203.0.113.7",
			Reputation:       -12,
			RecentViolations: 3,
			SuspiciousHits:   1,
			AuthFailures:     5,
			BlockCount:       1,
			RequestsLastHour: 140,
			FirstSeen:        seen.Add(-time.Hour),
			LastSeen:         seen,
		},
		{
			Key:              "198.51.100.9",
			Reputation:       0,
			RequestsLastHour: 4,
			FirstSeen:        seen,
			LastSeen:         seen,
		},
	}
}

func TestTableFormatterClients(t *testing.T) {
	rendered, err := (&TableFormatter{}).FormatClients(sampleClients())
	require.NoError(t, err)
	require.Contains(t, rendered, "CLIENT")
	require.Contains(t, rendered, "203.0.113.7")
	require.Contains(t, rendered, "-12")
	require.Contains(t, rendered, "2025-06-01T12:00:00Z")

	empty, err := (&TableFormatter{}).FormatClients(nil)
	require.NoError(t, err)
	require.Equal(t, "(no tracked clients)", empty)
}

func TestTableFormatterBlocks(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	blocks := []guard.BlockSnapshot{
		{
			Key:       "203.0.113.7",
			Reason:    guard.ViolationBurst,
			BlockedAt: at,
			UnblockAt: at.Add(2 * time.Minute),
			Remaining: 90 * time.Second,
		},
	}

	rendered, err := (&TableFormatter{}).FormatBlocks(blocks)
	require.NoError(t, err)
	require.Contains(t, rendered, "burst_attack")
	require.Contains(t, rendered, "1m30s")

	empty, err := (&TableFormatter{}).FormatBlocks(nil)
	require.NoError(t, err)
	require.Equal(t, "(no active blocks)", empty)
}

func TestTableFormatterStats(t *testing.T) {
	view := StatsView{
		Engine: guard.Stats{TrackedClients: 7, ActiveBlocks: 2, Evictions: 1},
		Decisions: &stats.Snapshot{
			Allowed: 100,
			Denied:  12,
			ByCategory: map[guard.Category]stats.Counters{
				guard.CategoryAuth: {Allowed: 10, Denied: 8},
			},
			ByReason: map[string]int64{guard.ReasonRateLimitMinute: 8},
		},
	}

	rendered, err := (&TableFormatter{}).FormatStats(view)
	require.NoError(t, err)
	require.Contains(t, rendered, "tracked clients")
	require.Contains(t, rendered, "authentication allowed/denied")
	require.Contains(t, rendered, "10/8")
	require.Contains(t, rendered, "denied rate_limit_minute")
}

func TestJSONFormatterRoundTrips(t *testing.T) {
	rendered, err := (&JSONFormatter{Indent: true}).FormatClients(sampleClients())
	require.NoError(t, err)

	var decoded []guard.ClientSnapshot
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "203.0.113.7", decoded[0].Key)
	require.Equal(t, -12, decoded[0].Reputation)
}

func TestStatsViewDecodesAdminResponse(t *testing.T) {
	// Shape written by the /guard/stats handler.
	payload := `{"engine":{"tracked_clients":3,"active_blocks":1,"evictions":0,"rebuilds":0},"decisions":{"since":"2025-06-01T12:00:00Z","allowed":9,"denied":1,"bypassed":0,"blocks":1,"unblocks":0,"evictions":0}}`

	var view StatsView
	require.NoError(t, json.Unmarshal([]byte(payload), &view))
	require.Equal(t, 3, view.Engine.TrackedClients)
	require.NotNil(t, view.Decisions)
	require.Equal(t, int64(9), view.Decisions.Allowed)
}

func TestPolicyTable(t *testing.T) {
	rendered := PolicyTable(guard.DefaultConfig())
	require.Contains(t, rendered, "CATEGORY")
	require.Contains(t, rendered, "general")
	require.Contains(t, rendered, "60")
	require.Contains(t, rendered, "1000")
}
