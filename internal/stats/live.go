// Package stats accumulates admission decisions for operators. Live keeps an
// in-process view served by /guard/stats and the CLI; RedisSink optionally
// mirrors per-instance counters into a shared store so a fleet can be
// observed in one place. Neither feeds back into admission decisions.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// Counters pairs allowed and denied tallies.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Live accumulates decision and event counts in memory. It implements
// guard.DecisionSink and guard.EventSink; both paths only touch atomics or a
// briefly-held mutex, keeping the engine's non-blocking sink contract.
type Live struct {
	started time.Time

	allowed  atomic.Int64
	denied   atomic.Int64
	bypassed atomic.Int64

	mu         sync.Mutex
	byCategory map[guard.Category]Counters
	byReason   map[string]int64
	violations map[guard.ViolationType]int64

	blocks    atomic.Int64
	unblocks  atomic.Int64
	evictions atomic.Int64
}

// NewLive returns an empty accumulator anchored at now.
func NewLive() *Live {
	return &Live{
		started:    time.Now().UTC(),
		byCategory: make(map[guard.Category]Counters),
		byReason:   make(map[string]int64),
		violations: make(map[guard.ViolationType]int64),
	}
}

// RecordDecision implements guard.DecisionSink.
func (l *Live) RecordDecision(d guard.Decision) {
	if d.Bypassed {
		l.bypassed.Add(1)
		return
	}
	if d.Allowed {
		l.allowed.Add(1)
	} else {
		l.denied.Add(1)
	}

	l.mu.Lock()
	c := l.byCategory[d.Category]
	if d.Allowed {
		c.Allowed++
	} else {
		c.Denied++
		l.byReason[d.Reason]++
	}
	l.byCategory[d.Category] = c
	l.mu.Unlock()
}

// RecordEvent implements guard.EventSink.
func (l *Live) RecordEvent(ev guard.Event) {
	switch ev.Kind {
	case guard.EventViolation:
		l.mu.Lock()
		l.violations[ev.Violation]++
		l.mu.Unlock()
	case guard.EventBlock:
		l.blocks.Add(1)
	case guard.EventUnblock:
		l.unblocks.Add(1)
	case guard.EventEviction:
		l.evictions.Add(1)
	}
}

// Snapshot is a point-in-time copy of the accumulated counts.
type Snapshot struct {
	Since    time.Time `json:"since"`
	Allowed  int64     `json:"allowed"`
	Denied   int64     `json:"denied"`
	Bypassed int64     `json:"bypassed"`

	ByCategory map[guard.Category]Counters   `json:"by_category,omitempty"`
	ByReason   map[string]int64              `json:"denials_by_reason,omitempty"`
	Violations map[guard.ViolationType]int64 `json:"violations_by_type,omitempty"`

	Blocks    int64 `json:"blocks"`
	Unblocks  int64 `json:"unblocks"`
	Evictions int64 `json:"evictions"`
}

// Snapshot copies the current counts.
func (l *Live) Snapshot() Snapshot {
	s := Snapshot{
		Since:     l.started,
		Allowed:   l.allowed.Load(),
		Denied:    l.denied.Load(),
		Bypassed:  l.bypassed.Load(),
		Blocks:    l.blocks.Load(),
		Unblocks:  l.unblocks.Load(),
		Evictions: l.evictions.Load(),
	}

	l.mu.Lock()
	if len(l.byCategory) > 0 {
		s.ByCategory = make(map[guard.Category]Counters, len(l.byCategory))
		for k, v := range l.byCategory {
			s.ByCategory[k] = v
		}
	}
	if len(l.byReason) > 0 {
		s.ByReason = make(map[string]int64, len(l.byReason))
		for k, v := range l.byReason {
			s.ByReason[k] = v
		}
	}
	if len(l.violations) > 0 {
		s.Violations = make(map[guard.ViolationType]int64, len(l.violations))
		for k, v := range l.violations {
			s.Violations[k] = v
		}
	}
	l.mu.Unlock()

	return s
}
