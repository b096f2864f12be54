package guard

import (
	"sort"
	"time"
)

// retention is how far back any window keeps timestamps. The hour quota is
// the longest consumer, so anything older is unreachable by every check.
const retention = time.Hour

// window is a time-ordered log of request timestamps for one client and
// category. Timestamps are appended in non-decreasing order and pruned from
// the front, so the slice stays sorted by construction. Not safe for
// concurrent use; callers hold the owning shard lock.
type window struct {
	stamps []time.Time
}

// record appends a timestamp and opportunistically prunes entries that have
// aged past the retention horizon.
func (w *window) record(ts time.Time) {
	w.prune(ts.Add(-retention))
	w.stamps = append(w.stamps, ts)
}

// countSince returns how many recorded timestamps are at or after cutoff.
// The slice is sorted, so the boundary is found by binary search.
func (w *window) countSince(cutoff time.Time) int {
	i := sort.Search(len(w.stamps), func(i int) bool {
		return !w.stamps[i].Before(cutoff)
	})
	return len(w.stamps) - i
}

// oldestSince returns the first timestamp at or after cutoff and whether one
// exists. Used to compute when the oldest in-window request expires.
func (w *window) oldestSince(cutoff time.Time) (time.Time, bool) {
	i := sort.Search(len(w.stamps), func(i int) bool {
		return !w.stamps[i].Before(cutoff)
	})
	if i == len(w.stamps) {
		return time.Time{}, false
	}
	return w.stamps[i], true
}

// prune drops timestamps strictly before cutoff. When the pruned slice
// occupies less than half its capacity it is reallocated so a historical
// burst cannot pin memory forever.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.stamps = w.stamps[i:]
	if cap(w.stamps) > 8 && len(w.stamps) < cap(w.stamps)/2 {
		trimmed := make([]time.Time, len(w.stamps))
		copy(trimmed, w.stamps)
		w.stamps = trimmed
	}
}

func (w *window) len() int { return len(w.stamps) }
