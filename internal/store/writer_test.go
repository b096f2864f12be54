package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

func TestAuditWriterDropsWhenQueueDead(t *testing.T) {
	w := NewAuditWriter(&Store{}, 1, 0, zap.NewNop())
	w.Close()

	// The worker is gone: the first event parks in the buffer, the second
	// has nowhere to go.
	w.RecordEvent(guard.Event{Kind: guard.EventBlock, ClientKey: "203.0.113.9"})
	w.RecordEvent(guard.Event{Kind: guard.EventBlock, ClientKey: "203.0.113.9"})

	require.Equal(t, int64(1), w.Dropped())
}

func TestAuditWriterSurvivesBrokenStore(t *testing.T) {
	w := NewAuditWriter(&Store{}, 4, 0, zap.NewNop())
	w.RecordEvent(guard.Event{Kind: guard.EventViolation, ClientKey: "203.0.113.9"})
	w.Close()

	require.Equal(t, int64(0), w.Dropped())
}

func TestAuditWriterCloseIsIdempotent(t *testing.T) {
	w := NewAuditWriter(&Store{}, 4, 0, nil)
	w.Close()
	w.Close()
}
