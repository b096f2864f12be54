package guard

import "time"

// EventKind labels a notable engine action.
type EventKind string

const (
	EventViolation EventKind = "violation"
	EventBlock     EventKind = "block"
	EventUnblock   EventKind = "unblock"
	EventEviction  EventKind = "eviction"
)

// Event is the audit record emitted when the engine penalizes, blocks,
// unblocks or evicts a client.
type Event struct {
	Kind      EventKind
	ClientKey string
	Category  Category

	// Violation is set for violation and block events.
	Violation ViolationType

	// Reputation is the client's score after the event.
	Reputation int

	// Duration is the block length for block events.
	Duration time.Duration

	At time.Time
}

// EventSink receives engine events. Implementations must not block: the
// engine calls sinks from the decision path, so slow consumers have to
// buffer or drop internally.
type EventSink interface {
	RecordEvent(ev Event)
}

// DecisionSink receives every decision the engine makes. The same
// non-blocking contract as EventSink applies.
type DecisionSink interface {
	RecordDecision(d Decision)
}
