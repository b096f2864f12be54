package guard

import "time"

// ViolationType names the offense behind a reputation penalty.
type ViolationType string

const (
	ViolationRateLimit  ViolationType = "rate_limit"
	ViolationBurst      ViolationType = "burst_attack"
	ViolationSuspicious ViolationType = "suspicious_pattern"
	ViolationRepeat     ViolationType = "repeat_violation"
)

// penaltyDeltas are the fixed reputation deltas per violation type.
var penaltyDeltas = map[ViolationType]int{
	ViolationRateLimit:  -2,
	ViolationBurst:      -5,
	ViolationSuspicious: -3,
	ViolationRepeat:     -10,
}

// PenaltyDelta returns the reputation delta for a violation type, zero for
// unknown types.
func PenaltyDelta(v ViolationType) int {
	return penaltyDeltas[v]
}

// reputationLedger applies penalty deltas and maintains the bounded
// violation history that drives block escalation. All methods operate on a
// clientState whose shard lock the caller holds.
type reputationLedger struct {
	memory time.Duration
}

// applyPenalty adjusts the score, appends the violation to the history and
// prunes entries older than the memory horizon. Returns the new score.
func (l reputationLedger) applyPenalty(c *clientState, v ViolationType, now time.Time) int {
	c.reputation += PenaltyDelta(v)
	c.violations = append(c.violations, now)
	c.pruneViolations(now.Add(-l.memory))
	return c.reputation
}

// recentViolations prunes the history and returns how many violations are
// still inside the memory horizon. Only these feed escalation.
func (l reputationLedger) recentViolations(c *clientState, now time.Time) int {
	return c.pruneViolations(now.Add(-l.memory))
}
