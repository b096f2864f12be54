package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// AuditWriter adapts the engine's non-blocking sink contract to a database
// that is allowed to be slow. Events queue into a bounded channel; a single
// worker drains it under a write-rate cap. When the queue is full the event
// is dropped and counted, never the decision delayed.
type AuditWriter struct {
	store *Store
	log   *zap.Logger

	events  chan guard.Event
	lim     *rate.Limiter
	dropped atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewAuditWriter starts the background writer. A non-positive queueSize falls
// back to 1024; a non-positive writesPerSecond disables the rate cap.
func NewAuditWriter(st *Store, queueSize, writesPerSecond int, log *zap.Logger) *AuditWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}

	var lim *rate.Limiter
	if writesPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(writesPerSecond), writesPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &AuditWriter{
		store:  st,
		log:    log,
		events: make(chan guard.Event, queueSize),
		lim:    lim,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// RecordEvent implements guard.EventSink.
func (w *AuditWriter) RecordEvent(ev guard.Event) {
	select {
	case w.events <- ev:
	default:
		w.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the queue was full
// or the writer was shutting down.
func (w *AuditWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops the worker, drains whatever is still queued and waits for the
// last write to finish.
func (w *AuditWriter) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		<-w.done
	})
}

func (w *AuditWriter) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case ev := <-w.events:
			w.write(ctx, ev)
		}
	}
}

func (w *AuditWriter) write(ctx context.Context, ev guard.Event) {
	if w.lim != nil {
		if err := w.lim.Wait(ctx); err != nil {
			// Shutdown interrupted the wait; write it out uncapped.
			w.insert(ev)
			return
		}
	}
	w.insert(ev)
}

func (w *AuditWriter) insert(ev guard.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.store.InsertEvent(ctx, ev); err != nil {
		w.log.Warn("audit write failed",
			zap.String("client", ev.ClientKey), zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

func (w *AuditWriter) drain() {
	for {
		select {
		case ev := <-w.events:
			w.insert(ev)
		default:
			return
		}
	}
}
