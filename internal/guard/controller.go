package guard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultShardCount = 64

// authFailureBurst is how many recorded authentication failures it takes to
// earn one suspicious-pattern penalty.
const authFailureBurst = 5

// Controller is the admission-control engine: identity resolution, endpoint
// classification, burst and pattern analysis, rate evaluation, reputation
// and blocking behind a single Check call. One instance is built at process
// start and shared by every handler; there is no package-level state.
//
// Decisions for one client key are serialized by that key's shard lock, so
// concurrent requests from the same client cannot both slip past a limit.
// No decision ever blocks on I/O.
type Controller struct {
	cfg        Config
	log        *zap.Logger
	clock      func() time.Time
	resolver   *IdentityResolver
	classifier *Classifier
	patterns   *PatternAnalyzer
	burst      burstDetector
	ledger     reputationLedger
	table      *clientTable
	blocks     *BlockList
	allow      allowRanges
	bypass     map[string]struct{}
	alerts     *alertThrottle

	shardCount int
	alertEvery time.Duration
	alertBurst int

	decisionSinks []DecisionSink
	eventSinks    []EventSink

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// Option customizes a Controller beyond its Config.
type Option func(*Controller)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(g *Controller) {
		if log != nil {
			g.log = log
		}
	}
}

// WithClock injects the time source. Tests use this to drive windows and
// block expiry deterministically.
func WithClock(clock func() time.Time) Option {
	return func(g *Controller) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithShardCount sets how many locks the client arena is split across.
// Rounded up to a power of two.
func WithShardCount(n int) Option {
	return func(g *Controller) {
		if n > 0 {
			g.shardCount = n
		}
	}
}

// WithDecisionSink registers a sink for every decision.
func WithDecisionSink(s DecisionSink) Option {
	return func(g *Controller) {
		if s != nil {
			g.decisionSinks = append(g.decisionSinks, s)
		}
	}
}

// WithEventSink registers a sink for violation, block, unblock and eviction
// events.
func WithEventSink(s EventSink) Option {
	return func(g *Controller) {
		if s != nil {
			g.eventSinks = append(g.eventSinks, s)
		}
	}
}

// WithAlertThrottle tunes the security-alert log cap.
func WithAlertThrottle(every time.Duration, burst int) Option {
	return func(g *Controller) {
		g.alertEvery = every
		g.alertBurst = burst
	}
}

// New builds a Controller from cfg. The returned error always wraps
// ErrConfiguration.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	resolver, err := NewIdentityResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	allow, err := parseAllowRanges(cfg.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	g := &Controller{
		cfg:        cfg,
		log:        zap.NewNop(),
		clock:      time.Now,
		resolver:   resolver,
		classifier: NewClassifier(),
		patterns:   NewPatternAnalyzer(),
		burst:      burstDetector{threshold: cfg.DDoS.BurstThreshold, window: cfg.DDoS.BurstWindow},
		ledger:     reputationLedger{memory: cfg.DDoS.ViolationMemory},
		blocks:     NewBlockList(),
		allow:      allow,
		bypass:     make(map[string]struct{}, len(cfg.BypassPaths)),
		shardCount: defaultShardCount,
		alertEvery: time.Second,
		alertBurst: 5,
		sweepDone:  make(chan struct{}),
	}
	for _, p := range cfg.BypassPaths {
		g.bypass[p] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	g.alerts = newAlertThrottle(g.log, g.alertEvery, g.alertBurst)
	g.table = newClientTable(g.shardCount, cfg.MaxClients)

	if cfg.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		g.sweepCancel = cancel
		go g.runSweeper(ctx, cfg.SweepInterval)
	} else {
		close(g.sweepDone)
	}
	return g, nil
}

// Check decides one request. It never returns an error: any analysis
// failure degrades to admission, never to denial.
func (g *Controller) Check(req Request) Decision {
	now := req.ReceivedAt
	if now.IsZero() {
		now = g.clock()
	}
	if _, ok := g.bypass[req.Path]; ok {
		return Decision{Allowed: true, Status: http.StatusOK, Bypassed: true}
	}

	key := g.resolver.Resolve(req)
	if key == UnknownClient {
		g.log.Debug("sharing the unknown bucket",
			zap.String("remote_addr", req.RemoteAddr), zap.Error(ErrIdentityUnresolvable))
	}
	if g.allow.contains(key) {
		return Decision{Allowed: true, Status: http.StatusOK, ClientKey: key, Bypassed: true}
	}

	d := g.decide(req, key, g.classifier.Classify(req.Path), now)
	g.publish(d)
	return d
}

// decide runs the serialized portion of admission control: everything from
// the block check through recording happens under the client's shard lock.
func (g *Controller) decide(req Request, key string, cat Category, now time.Time) Decision {
	pol, known := g.cfg.policyFor(cat)
	if !known {
		g.log.Warn("no policy for category, using general",
			zap.String("category", string(cat)), zap.Error(ErrConfiguration))
	}

	sh := g.table.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, evicted, rebuilt := g.table.getOrCreate(sh, key, now)
	if rebuilt {
		g.log.Warn("dropped and rebuilt client state",
			zap.String("client", key), zap.Error(ErrStateCorruption))
	}
	if evicted != "" {
		g.emit(Event{Kind: EventEviction, ClientKey: evicted, At: now})
	}
	c.lastSeen = now

	if blocked, remaining := g.checkBlocked(key, now); blocked {
		return g.deny(c, cat, pol, ReasonBlocked, remaining, now)
	}

	if score := g.patternScore(req); g.patterns.Suspicious(score) {
		c.suspiciousHits++
		rep := g.penalize(c, cat, ViolationSuspicious, now)
		g.alerts.alert("suspicious request pattern",
			zap.String("client", key), zap.String("path", req.Path),
			zap.Int("score", score), zap.Int("reputation", rep))
	}

	if g.burstExceeded(c, now) {
		g.penalize(c, cat, ViolationBurst, now)
		dur := g.block(c, cat, ViolationBurst, now)
		return g.deny(c, cat, pol, ReasonBurstAttack, dur, now)
	}

	if v := g.rateVerdict(c, cat, pol, now); !v.allowed {
		rep := g.penalize(c, cat, ViolationRateLimit, now)
		if rep <= g.cfg.DDoS.ReputationThreshold {
			dur := g.block(c, cat, ViolationRateLimit, now)
			return g.deny(c, cat, pol, ReasonBlocked, dur, now)
		}
		return g.deny(c, cat, pol, v.reason, v.retryAfter, now)
	}

	c.recordRequest(cat, now)
	return g.admit(c, cat, pol, now)
}

// penalize applies a reputation penalty and emits the violation event.
// Caller holds the shard lock.
func (g *Controller) penalize(c *clientState, cat Category, v ViolationType, now time.Time) int {
	rep := g.ledger.applyPenalty(c, v, now)
	g.emit(Event{
		Kind: EventViolation, ClientKey: c.key, Category: cat,
		Violation: v, Reputation: rep, At: now,
	})
	return rep
}

// block escalates a violating client into the block list. Re-offending
// while the previous block is still inside the violation memory compounds a
// repeat penalty first, so serial offenders climb the duration schedule
// faster. Caller holds the shard lock.
func (g *Controller) block(c *clientState, cat Category, cause ViolationType, now time.Time) time.Duration {
	if !c.lastBlocked.IsZero() && now.Sub(c.lastBlocked) <= g.cfg.DDoS.ViolationMemory {
		g.penalize(c, cat, ViolationRepeat, now)
	}
	recent := g.ledger.recentViolations(c, now)
	dur := blockDuration(g.cfg.DDoS, recent)
	g.blocks.Block(c.key, cause, dur, now)
	c.lastBlocked = now
	c.blockCount++
	g.emit(Event{
		Kind: EventBlock, ClientKey: c.key, Category: cat,
		Violation: cause, Reputation: c.reputation, Duration: dur, At: now,
	})
	g.alerts.alert("client blocked",
		zap.String("client", c.key), zap.String("cause", string(cause)),
		zap.Duration("duration", dur), zap.Int("reputation", c.reputation),
		zap.Int("recent_violations", recent))
	return dur
}

func (g *Controller) admit(c *clientState, cat Category, pol RateLimitPolicy, now time.Time) Decision {
	return Decision{
		Allowed:    true,
		Status:     http.StatusOK,
		ClientKey:  c.key,
		Category:   cat,
		Reputation: c.reputation,
		Headers:    g.headers(c, cat, pol, now, false, 0),
	}
}

func (g *Controller) deny(c *clientState, cat Category, pol RateLimitPolicy, reason string, retry time.Duration, now time.Time) Decision {
	blocked := reason == ReasonBlocked || reason == ReasonBurstAttack
	return Decision{
		Allowed:    false,
		Status:     http.StatusTooManyRequests,
		ClientKey:  c.key,
		Category:   cat,
		Reason:     reason,
		RetryAfter: retry,
		Reputation: c.reputation,
		Headers:    g.headers(c, cat, pol, now, blocked, retry),
	}
}

// headers builds the diagnostic set attached to every non-bypassed decision.
// Counts only reflect recorded requests, so a denial does not consume quota.
func (g *Controller) headers(c *clientState, cat Category, pol RateLimitPolicy, now time.Time, blocked bool, retry time.Duration) map[string]string {
	minuteUsed := c.countSince(cat, now.Add(-time.Minute))
	hourUsed := c.countSince(cat, now.Add(-time.Hour))
	h := map[string]string{
		HeaderRateLimitType:   string(cat),
		HeaderLimitMinute:     strconv.Itoa(pol.CallsPerMinute),
		HeaderRemainingMinute: strconv.Itoa(clampRemaining(pol.CallsPerMinute - minuteUsed)),
		HeaderLimitHour:       strconv.Itoa(pol.CallsPerHour),
		HeaderRemainingHour:   strconv.Itoa(clampRemaining(pol.CallsPerHour - hourUsed)),
		HeaderDDoSProtection:  ddosProtectionActive,
		HeaderIPReputation:    strconv.Itoa(c.reputation),
		HeaderBlockStatus:     blockStatusNotBlocked,
	}
	if blocked {
		h[HeaderBlockStatus] = blockStatusBlocked
	}
	if retry > 0 {
		h[HeaderRetryAfter] = strconv.Itoa(retrySeconds(retry))
	}
	return h
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// retrySeconds converts a wait into whole seconds, rounding up with a floor
// of one so clients never retry instantly.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// checkBlocked consults the block list, failing safe toward "not blocked":
// a fault in ban bookkeeping must not lock out legitimate clients.
func (g *Controller) checkBlocked(key string, now time.Time) (blocked bool, remaining time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("block check panicked, treating client as not blocked",
				zap.String("client", key), zap.Any("panic", r), zap.Error(ErrAnalysis))
			blocked, remaining = false, 0
		}
	}()
	return g.blocks.IsBlocked(key, now)
}

// patternScore runs the analyzer, failing open to a zero score.
func (g *Controller) patternScore(req Request) (score int) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("pattern analysis panicked, treating as no violation",
				zap.Any("panic", r), zap.Error(ErrAnalysis))
			score = 0
		}
	}()
	return g.patterns.Score(req)
}

// burstExceeded runs burst detection, failing open to "no burst".
func (g *Controller) burstExceeded(c *clientState, now time.Time) (exceeded bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("burst detection panicked, treating as no violation",
				zap.String("client", c.key), zap.Any("panic", r), zap.Error(ErrAnalysis))
			exceeded = false
		}
	}()
	return g.burst.exceeded(c, now)
}

// rateVerdict evaluates the rate policy, failing open to "allowed".
func (g *Controller) rateVerdict(c *clientState, cat Category, pol RateLimitPolicy, now time.Time) (v rateVerdict) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("rate evaluation panicked, treating as no violation",
				zap.String("client", c.key), zap.Any("panic", r), zap.Error(ErrAnalysis))
			v = rateVerdict{allowed: true}
		}
	}()
	return evaluateRate(c, cat, pol, now)
}

func (g *Controller) publish(d Decision) {
	for _, s := range g.decisionSinks {
		s.RecordDecision(d)
	}
}

func (g *Controller) emit(ev Event) {
	for _, s := range g.eventSinks {
		s.RecordEvent(ev)
	}
}

// Unblock lifts an active ban early, reporting whether one existed.
func (g *Controller) Unblock(key string) bool {
	if !g.blocks.Unblock(key) {
		return false
	}
	g.emit(Event{Kind: EventUnblock, ClientKey: key, At: g.clock()})
	g.log.Info("client unblocked", zap.String("client", key))
	return true
}

// RecordOutcome feeds the final status of a handled request back into the
// engine. Authentication failures accumulate per client; every
// authFailureBurst-th one counts as a suspicious pattern. Unknown clients
// are ignored rather than created.
func (g *Controller) RecordOutcome(key string, status int) {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return
	}
	now := g.clock()
	sh := g.table.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.clients[key]
	if !ok || c.corrupted() {
		return
	}
	c.authFailures++
	if c.authFailures%authFailureBurst == 0 {
		rep := g.penalize(c, CategoryAuth, ViolationSuspicious, now)
		g.alerts.alert("repeated authentication failures",
			zap.String("client", key), zap.Int("failures", c.authFailures),
			zap.Int("reputation", rep))
	}
}

// TrackedClients returns how many clients the arena currently holds.
func (g *Controller) TrackedClients() int { return g.table.len() }

// ActiveBlocks returns the block-list size, expired entries included until
// they are looked up or swept.
func (g *Controller) ActiveBlocks() int { return g.blocks.Len() }

// Close stops the background sweeper and waits for it to exit. The engine
// keeps deciding after Close; only maintenance stops.
func (g *Controller) Close() {
	g.closeOnce.Do(func() {
		if g.sweepCancel != nil {
			g.sweepCancel()
		}
		<-g.sweepDone
	})
}
