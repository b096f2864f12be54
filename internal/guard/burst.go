package guard

import "time"

// burstDetector flags DDoS-style floods by summing a client's request volume
// across every category, so spreading traffic over endpoints does not evade
// per-category limits.
type burstDetector struct {
	threshold int
	window    time.Duration
}

// exceeded reports whether the request being decided pushes the client's
// volume inside the window to the threshold. That request is not yet in the
// tracker, so it counts as one here. Caller holds the shard lock.
func (d burstDetector) exceeded(c *clientState, now time.Time) bool {
	if d.threshold <= 0 || d.window <= 0 {
		return false
	}
	return c.totalSince(now.Add(-d.window))+1 >= d.threshold
}
