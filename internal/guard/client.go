package guard

import (
	"sync"
	"sync/atomic"
	"time"
)

// clientState is everything the engine remembers about one client key. All
// fields are guarded by the owning shard's mutex.
type clientState struct {
	key     string
	windows map[Category]*window

	// reputation only moves through penalty deltas; it has no floor and
	// does not recover upward.
	reputation int

	// violations is time-ordered and pruned against the violation memory
	// horizon, so escalation math only ever sees recent entries.
	violations []time.Time

	suspiciousHits int
	authFailures   int
	blockCount     int
	lastBlocked    time.Time

	firstSeen time.Time
	lastSeen  time.Time
}

func newClientState(key string, now time.Time) *clientState {
	return &clientState{
		key:       key,
		windows:   make(map[Category]*window, len(Categories)),
		firstSeen: now,
		lastSeen:  now,
	}
}

func (c *clientState) windowFor(cat Category) *window {
	w, ok := c.windows[cat]
	if !ok {
		w = &window{}
		c.windows[cat] = w
	}
	return w
}

// recordRequest logs an admitted request into the category window.
func (c *clientState) recordRequest(cat Category, ts time.Time) {
	c.windowFor(cat).record(ts)
	c.lastSeen = ts
}

// countSince counts requests in one category at or after cutoff.
func (c *clientState) countSince(cat Category, cutoff time.Time) int {
	w, ok := c.windows[cat]
	if !ok {
		return 0
	}
	return w.countSince(cutoff)
}

// totalSince counts requests across every category at or after cutoff.
func (c *clientState) totalSince(cutoff time.Time) int {
	total := 0
	for _, w := range c.windows {
		total += w.countSince(cutoff)
	}
	return total
}

// pruneViolations drops violation history older than the memory horizon and
// returns the surviving count.
func (c *clientState) pruneViolations(cutoff time.Time) int {
	i := 0
	for i < len(c.violations) && c.violations[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.violations = append(c.violations[:0], c.violations[i:]...)
	}
	return len(c.violations)
}

// countRecentViolations counts history entries at or after cutoff without
// mutating the slice; snapshots use it to stay read-only.
func (c *clientState) countRecentViolations(cutoff time.Time) int {
	n := 0
	for i := len(c.violations) - 1; i >= 0 && !c.violations[i].Before(cutoff); i-- {
		n++
	}
	return n
}

// corrupted reports whether the entry is in a state the engine cannot use.
// Such entries are dropped and rebuilt rather than repaired.
func (c *clientState) corrupted() bool {
	return c == nil || c.windows == nil || c.firstSeen.IsZero()
}

// clientShard owns a slice of the client arena. Decisions for a key run
// entirely under its shard lock, which serializes concurrent requests from
// the same client.
type clientShard struct {
	mu      sync.Mutex
	clients map[string]*clientState
}

// clientTable is a sharded map of client states. Shard count is a power of
// two so the hash can be masked instead of divided.
type clientTable struct {
	shards    []*clientShard
	max       int
	count     atomic.Int64
	evictions atomic.Int64
	rebuilds  atomic.Int64
}

func newClientTable(shardCount, maxClients int) *clientTable {
	if shardCount < 1 {
		shardCount = 1
	}
	// Round up to a power of two.
	n := 1
	for n < shardCount {
		n <<= 1
	}
	t := &clientTable{shards: make([]*clientShard, n), max: maxClients}
	for i := range t.shards {
		t.shards[i] = &clientShard{clients: make(map[string]*clientState)}
	}
	return t
}

// shardFor hashes the key with FNV-1a and masks it onto a shard.
func (t *clientTable) shardFor(key string) *clientShard {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return t.shards[h&uint32(len(t.shards)-1)]
}

// getOrCreate returns the state for key, building a fresh one when absent or
// corrupted. The caller must hold s.mu. When the arena is at capacity the
// least recently seen client in this shard is evicted first, so the table
// size stays within max plus at most one entry per shard.
func (t *clientTable) getOrCreate(s *clientShard, key string, now time.Time) (c *clientState, evicted string, rebuilt bool) {
	if existing, ok := s.clients[key]; ok {
		if !existing.corrupted() {
			return existing, "", false
		}
		t.rebuilds.Add(1)
		rebuilt = true
	}
	if !rebuilt && t.count.Load() >= int64(t.max) {
		if victim := s.oldest(); victim != "" && victim != key {
			delete(s.clients, victim)
			t.count.Add(-1)
			t.evictions.Add(1)
			evicted = victim
		}
	}
	c = newClientState(key, now)
	if _, ok := s.clients[key]; !ok {
		t.count.Add(1)
	}
	s.clients[key] = c
	return c, evicted, rebuilt
}

// oldest returns the key with the stalest lastSeen in the shard. Caller
// holds s.mu.
func (s *clientShard) oldest() string {
	var key string
	var seen time.Time
	for k, c := range s.clients {
		if key == "" || c.lastSeen.Before(seen) {
			key = k
			seen = c.lastSeen
		}
	}
	return key
}

// removeIdle deletes clients whose last activity is older than cutoff and
// returns their keys. Locks only this shard, briefly.
func (s *clientShard) removeIdle(t *clientTable, cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for k, c := range s.clients {
		if c.lastSeen.Before(cutoff) {
			delete(s.clients, k)
			removed = append(removed, k)
		}
	}
	if n := len(removed); n > 0 {
		t.count.Add(int64(-n))
		t.evictions.Add(int64(n))
	}
	return removed
}

func (t *clientTable) len() int { return int(t.count.Load()) }
