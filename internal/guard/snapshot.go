package guard

import (
	"sort"
	"time"
)

// ClientSnapshot is a point-in-time copy of one client's tracked state, safe
// to hand to the admin surface and CLI without holding any lock.
type ClientSnapshot struct {
	Key              string    `json:"key"`
	Reputation       int       `json:"reputation"`
	RecentViolations int       `json:"recent_violations"`
	SuspiciousHits   int       `json:"suspicious_hits"`
	AuthFailures     int       `json:"auth_failures"`
	BlockCount       int       `json:"block_count"`
	RequestsLastHour int       `json:"requests_last_hour"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// BlockSnapshot is a point-in-time copy of one active ban.
type BlockSnapshot struct {
	Key       string        `json:"key"`
	Reason    ViolationType `json:"reason"`
	BlockedAt time.Time     `json:"blocked_at"`
	UnblockAt time.Time     `json:"unblock_at"`
	Remaining time.Duration `json:"remaining"`
}

// Stats summarizes the engine's operational counters.
type Stats struct {
	TrackedClients int   `json:"tracked_clients"`
	ActiveBlocks   int   `json:"active_blocks"`
	Evictions      int64 `json:"evictions"`
	Rebuilds       int64 `json:"rebuilds"`
}

// Stats returns the engine's operational counters.
func (g *Controller) Stats() Stats {
	return Stats{
		TrackedClients: g.table.len(),
		ActiveBlocks:   g.blocks.Len(),
		Evictions:      g.table.evictions.Load(),
		Rebuilds:       g.table.rebuilds.Load(),
	}
}

// SnapshotClient returns the state of one client key.
func (g *Controller) SnapshotClient(key string) (ClientSnapshot, bool) {
	now := g.clock()
	sh := g.table.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.clients[key]
	if !ok || c.corrupted() {
		return ClientSnapshot{}, false
	}
	return g.snapshotLocked(c, now), true
}

// SnapshotClients returns up to limit clients ordered by worst reputation
// first, ties broken by most recent activity. A non-positive limit returns
// everything.
func (g *Controller) SnapshotClients(limit int) []ClientSnapshot {
	now := g.clock()
	out := make([]ClientSnapshot, 0, g.table.len())
	for _, sh := range g.table.shards {
		sh.mu.Lock()
		for _, c := range sh.clients {
			if c.corrupted() {
				continue
			}
			out = append(out, g.snapshotLocked(c, now))
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation < out[j].Reputation
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SnapshotBlocks returns every active ban, longest remaining first. Expired
// entries are skipped.
func (g *Controller) SnapshotBlocks() []BlockSnapshot {
	now := g.clock()
	g.blocks.mu.Lock()
	out := make([]BlockSnapshot, 0, len(g.blocks.entries))
	for key, e := range g.blocks.entries {
		if !now.Before(e.unblockAt) {
			continue
		}
		out = append(out, BlockSnapshot{
			Key:       key,
			Reason:    e.reason,
			BlockedAt: e.blockedAt,
			UnblockAt: e.unblockAt,
			Remaining: e.unblockAt.Sub(now),
		})
	}
	g.blocks.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Remaining > out[j].Remaining })
	return out
}

// snapshotLocked copies one client's state; the caller holds its shard lock.
func (g *Controller) snapshotLocked(c *clientState, now time.Time) ClientSnapshot {
	return ClientSnapshot{
		Key:              c.key,
		Reputation:       c.reputation,
		RecentViolations: c.countRecentViolations(now.Add(-g.cfg.DDoS.ViolationMemory)),
		SuspiciousHits:   c.suspiciousHits,
		AuthFailures:     c.authFailures,
		BlockCount:       c.blockCount,
		RequestsLastHour: c.totalSince(now.Add(-time.Hour)),
		FirstSeen:        c.firstSeen,
		LastSeen:         c.lastSeen,
	}
}
