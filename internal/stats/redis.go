package stats

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// RedisSink mirrors decisions and block events into Redis so a fleet of
// instances can be observed together. It is visibility only: counters are
// per-instance enforcement records, never shared limit state, and a dead
// Redis costs nothing but the mirror.
//
// Decisions queue into a bounded channel drained by one worker; when the
// queue is full the decision is dropped and counted, keeping the engine's
// non-blocking sink contract.
type RedisSink struct {
	rdb      *redis.Client
	log      *zap.Logger
	prefix   string
	instance string
	ttl      time.Duration

	queue   chan guard.Decision
	dropped atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// RedisOption customizes a RedisSink.
type RedisOption func(*RedisSink)

// WithPrefix sets the key namespace. Default "stormguard".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSink) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithInstance tags counters with an instance identifier, typically the
// hostname, so fleet counters stay per-instance as enforcement is.
func WithInstance(id string) RedisOption {
	return func(s *RedisSink) {
		if id != "" {
			s.instance = id
		}
	}
}

// WithTTL bounds how long minute buckets and per-client counters live.
// Totals never expire. Default 24h.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisSink) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithRedisLogger sets the sink logger. The default discards everything.
func WithRedisLogger(log *zap.Logger) RedisOption {
	return func(s *RedisSink) {
		if log != nil {
			s.log = log
		}
	}
}

// NewRedisSink starts the background mirror worker. The client stays owned
// by the caller; Close stops the worker without closing it.
func NewRedisSink(rdb *redis.Client, opts ...RedisOption) *RedisSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RedisSink{
		rdb:      rdb,
		log:      zap.NewNop(),
		prefix:   "stormguard",
		instance: "default",
		ttl:      24 * time.Hour,
		queue:    make(chan guard.Decision, 1024),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run(ctx)
	return s
}

// RecordDecision implements guard.DecisionSink.
func (s *RedisSink) RecordDecision(d guard.Decision) {
	if d.Bypassed {
		return
	}
	select {
	case s.queue <- d:
	default:
		s.dropped.Add(1)
	}
}

// RecordEvent implements guard.EventSink. Only block events are mirrored;
// they are rare enough to write inline on the worker via the queue path the
// decisions use.
func (s *RedisSink) RecordEvent(ev guard.Event) {
	if ev.Kind != guard.EventBlock {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := s.prefix + ":blocks:" + s.instance
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, string(ev.Violation), 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debug("redis block mirror failed", zap.Error(err))
	}
}

// Dropped reports how many decisions were discarded under queue pressure.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

// Ping verifies the Redis connection, for health checks.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close stops the worker and waits for the in-flight write to finish.
func (s *RedisSink) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *RedisSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			s.write(d)
		}
	}
}

// write mirrors one decision: a cumulative total hash, a minute bucket and a
// per-client hash, the latter two under TTL so attack traffic cannot grow
// the keyspace without bound.
func (s *RedisSink) write(d guard.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	field := decisionField(d)
	totalKey := s.prefix + ":total:" + s.instance
	bucketKey := s.prefix + ":minute:" + s.instance + ":" + time.Now().UTC().Format("200601021504")

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	if d.ClientKey != "" {
		clientKey := s.prefix + ":client:" + s.instance + ":" + d.ClientKey
		pipe.HIncrBy(ctx, clientKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, clientKey, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debug("redis decision mirror failed", zap.Error(err))
	}
}

// decisionField names the hash field a decision increments.
func decisionField(d guard.Decision) string {
	if d.Allowed {
		return "allowed:" + string(d.Category)
	}
	if d.Reason != "" {
		return "denied:" + string(d.Category) + ":" + d.Reason
	}
	return "denied:" + string(d.Category)
}
