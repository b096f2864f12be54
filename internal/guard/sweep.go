package guard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runSweeper periodically evicts idle client state and expired block
// entries until ctx is cancelled. Without it a sustained flood of unique
// identities would grow the arena without bound.
func (g *Controller) runSweeper(ctx context.Context, interval time.Duration) {
	defer close(g.sweepDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.sweepOnce(g.clock())
		}
	}
}

// sweepOnce performs one sweep pass at the given instant. Each shard is
// locked on its own and only briefly, so the sweep never stalls decisions
// for long.
func (g *Controller) sweepOnce(now time.Time) (clientsEvicted, blocksExpired int) {
	cutoff := now.Add(-g.cfg.IdleTTL)
	for _, sh := range g.table.shards {
		for _, key := range sh.removeIdle(g.table, cutoff) {
			clientsEvicted++
			g.emit(Event{Kind: EventEviction, ClientKey: key, At: now})
		}
	}
	blocksExpired = len(g.blocks.sweep(now))
	if clientsEvicted > 0 || blocksExpired > 0 {
		g.log.Debug("sweep pass",
			zap.Int("clients_evicted", clientsEvicted),
			zap.Int("blocks_expired", blocksExpired),
			zap.Int("clients_tracked", g.table.len()))
	}
	return clientsEvicted, blocksExpired
}
