package guard

import "time"

// rateVerdict is the outcome of evaluating one request against its category
// policy.
type rateVerdict struct {
	allowed bool

	// reason is the first violated limit, minute checked before hour.
	reason string

	// retryAfter is how long until the oldest in-window request leaves the
	// violated window, freeing one slot.
	retryAfter time.Duration
}

// evaluateRate compares the client's tracked counts for a category against
// the policy. Read-only; the caller holds the shard lock.
func evaluateRate(c *clientState, cat Category, pol RateLimitPolicy, now time.Time) rateVerdict {
	w, ok := c.windows[cat]
	if !ok {
		return rateVerdict{allowed: true}
	}
	minuteCutoff := now.Add(-time.Minute)
	if w.countSince(minuteCutoff) >= pol.CallsPerMinute {
		return rateVerdict{
			reason:     ReasonRateLimitMinute,
			retryAfter: slotFreesIn(w, minuteCutoff, time.Minute, now),
		}
	}
	hourCutoff := now.Add(-time.Hour)
	if w.countSince(hourCutoff) >= pol.CallsPerHour {
		return rateVerdict{
			reason:     ReasonRateLimitHour,
			retryAfter: slotFreesIn(w, hourCutoff, time.Hour, now),
		}
	}
	return rateVerdict{allowed: true}
}

// slotFreesIn returns how long until the oldest entry inside the window ages
// out of it.
func slotFreesIn(w *window, cutoff time.Time, span time.Duration, now time.Time) time.Duration {
	oldest, ok := w.oldestSince(cutoff)
	if !ok {
		return span
	}
	d := oldest.Add(span).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
