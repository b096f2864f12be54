package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

func TestLiveCountsDecisions(t *testing.T) {
	l := NewLive()

	l.RecordDecision(guard.Decision{Allowed: true, Category: guard.CategoryGeneral})
	l.RecordDecision(guard.Decision{Allowed: true, Category: guard.CategoryAuth})
	l.RecordDecision(guard.Decision{Allowed: false, Category: guard.CategoryAuth, Reason: guard.ReasonRateLimitMinute})
	l.RecordDecision(guard.Decision{Allowed: true, Bypassed: true})

	s := l.Snapshot()
	assert.Equal(t, int64(2), s.Allowed)
	assert.Equal(t, int64(1), s.Denied)
	assert.Equal(t, int64(1), s.Bypassed)
	assert.Equal(t, Counters{Allowed: 1}, s.ByCategory[guard.CategoryGeneral])
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByCategory[guard.CategoryAuth])
	assert.Equal(t, int64(1), s.ByReason[guard.ReasonRateLimitMinute])
	assert.False(t, s.Since.IsZero())
}

func TestLiveCountsEvents(t *testing.T) {
	l := NewLive()

	l.RecordEvent(guard.Event{Kind: guard.EventViolation, Violation: guard.ViolationRateLimit})
	l.RecordEvent(guard.Event{Kind: guard.EventViolation, Violation: guard.ViolationRateLimit})
	l.RecordEvent(guard.Event{Kind: guard.EventViolation, Violation: guard.ViolationBurst})
	l.RecordEvent(guard.Event{Kind: guard.EventBlock, Violation: guard.ViolationBurst})
	l.RecordEvent(guard.Event{Kind: guard.EventUnblock})
	l.RecordEvent(guard.Event{Kind: guard.EventEviction})

	s := l.Snapshot()
	assert.Equal(t, int64(2), s.Violations[guard.ViolationRateLimit])
	assert.Equal(t, int64(1), s.Violations[guard.ViolationBurst])
	assert.Equal(t, int64(1), s.Blocks)
	assert.Equal(t, int64(1), s.Unblocks)
	assert.Equal(t, int64(1), s.Evictions)
}

func TestLiveSnapshotIsACopy(t *testing.T) {
	l := NewLive()
	l.RecordDecision(guard.Decision{Allowed: true, Category: guard.CategoryGeneral})

	s := l.Snapshot()
	s.ByCategory[guard.CategoryGeneral] = Counters{Allowed: 99}

	require.Equal(t, Counters{Allowed: 1}, l.Snapshot().ByCategory[guard.CategoryGeneral])
}

func TestLiveConcurrentRecording(t *testing.T) {
	l := NewLive()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.RecordDecision(guard.Decision{Allowed: j%2 == 0, Category: guard.CategoryGeneral, Reason: guard.ReasonRateLimitMinute})
				l.RecordEvent(guard.Event{Kind: guard.EventViolation, Violation: guard.ViolationRateLimit})
			}
		}()
	}
	wg.Wait()

	s := l.Snapshot()
	assert.Equal(t, int64(400), s.Allowed)
	assert.Equal(t, int64(400), s.Denied)
	assert.Equal(t, int64(800), s.Violations[guard.ViolationRateLimit])
}
