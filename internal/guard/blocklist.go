package guard

import (
	"sync"
	"time"
)

// blockEntry is one active temporary ban.
type blockEntry struct {
	reason    ViolationType
	blockedAt time.Time
	unblockAt time.Time
}

// BlockList holds active temporary bans. It carries its own mutex so the
// sweeper and admin surface can consult it without touching client shards;
// code holding a shard lock may lock the block list, never the reverse.
type BlockList struct {
	mu      sync.Mutex
	entries map[string]blockEntry
}

// NewBlockList returns an empty block list.
func NewBlockList() *BlockList {
	return &BlockList{entries: make(map[string]blockEntry)}
}

// Block bans key for d starting at now and returns the unblock time. An
// existing entry is overwritten, which only ever extends the ban because
// durations escalate.
func (b *BlockList) Block(key string, reason ViolationType, d time.Duration, now time.Time) time.Time {
	until := now.Add(d)
	b.mu.Lock()
	b.entries[key] = blockEntry{reason: reason, blockedAt: now, unblockAt: until}
	b.mu.Unlock()
	return until
}

// IsBlocked reports whether key is banned at now and, if so, for how much
// longer. Expired entries are deleted lazily on lookup.
func (b *BlockList) IsBlocked(key string, now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return false, 0
	}
	if !now.Before(e.unblockAt) {
		delete(b.entries, key)
		return false, 0
	}
	return true, e.unblockAt.Sub(now)
}

// Unblock removes an active ban, reporting whether one existed.
func (b *BlockList) Unblock(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	return true
}

// sweep removes every expired entry and returns the affected keys.
func (b *BlockList) sweep(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var removed []string
	for k, e := range b.entries {
		if !now.Before(e.unblockAt) {
			delete(b.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included until a lookup
// or sweep removes them.
func (b *BlockList) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// blockDuration escalates with the client's recent violation count:
// base doubled per violation, exponent capped at 5, result capped at max.
func blockDuration(cfg DDoSConfig, recentViolations int) time.Duration {
	n := recentViolations
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	d := cfg.BaseBlockDuration << uint(n)
	if d > cfg.MaxBlockDuration || d < cfg.BaseBlockDuration {
		d = cfg.MaxBlockDuration
	}
	return d
}
