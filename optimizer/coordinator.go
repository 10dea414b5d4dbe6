package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loadplane/go-entity-cache/batch"
	"github.com/loadplane/go-entity-cache/events"
)

// ErrNoFallback is returned by Execute when no strategy applies and the
// descriptor carries no fallback.
var ErrNoFallback = errors.New("optimizer: no applicable strategy and no fallback")

// Coordinator routes queries through registered optimization strategies and
// aggregates query metrics. It implements batch.Observer and
// relations.Analyzer so loaders can report into it directly.
type Coordinator struct {
	cfg      Config
	logger   logrus.FieldLogger
	emitter  events.Emitter
	detector *detector

	mu           sync.Mutex
	strategies   []*registeredStrategy
	history      *metricRing
	slow         []QueryMetricRecord
	totalQueries int64
	totalExec    time.Duration
	batchedCount int64
	hitRatioSum  float64
	fallbackRuns int64
	fallbackExec time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger overrides the default logger.
func WithLogger(logger logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithEmitter attaches an event emitter for slow query and N+1 alerts.
func WithEmitter(e events.Emitter) CoordinatorOption {
	return func(c *Coordinator) { c.emitter = e }
}

// NewCoordinator validates cfg and builds a Coordinator.
func NewCoordinator(cfg Config, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:      cfg,
		logger:   logrus.StandardLogger(),
		emitter:  events.Nop{},
		detector: newDetector(cfg.NPlusOneThreshold, cfg.DetectionWindow),
		history:  newMetricRing(cfg.HistorySize),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.janitor()
	return c, nil
}

// RegisterStrategy appends a strategy. Registration order is precedence
// order: Execute applies the first applicable strategy.
func (c *Coordinator) RegisterStrategy(s Strategy) {
	c.mu.Lock()
	c.strategies = append(c.strategies, &registeredStrategy{strategy: s})
	c.mu.Unlock()
}

// Execute runs the query described by d through the first applicable
// strategy, falling back to d.Fallback when none applies.
func (c *Coordinator) Execute(ctx context.Context, d Descriptor) (any, error) {
	fp := fingerprint(d.EntityType, d.Operation, d.Relations)
	c.observeFingerprint(fp, d.EntityType, d.Operation, d.Relations)

	c.mu.Lock()
	strategies := make([]*registeredStrategy, len(c.strategies))
	copy(strategies, c.strategies)
	c.mu.Unlock()

	for _, reg := range strategies {
		if !reg.strategy.IsApplicable(d) {
			continue
		}
		reg.applied.Add(1)
		start := time.Now()
		out, err := reg.strategy.Apply(ctx, d)
		elapsed := time.Since(start)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"strategy":    reg.strategy.ID(),
				"entity_type": d.EntityType,
				"operation":   d.Operation,
			}).WithError(err).Warn("optimization strategy failed")
			return nil, fmt.Errorf("optimizer: strategy %s: %w", reg.strategy.ID(), err)
		}
		reg.succeeded.Add(1)
		if saved := c.avgFallbackTime() - elapsed; saved > 0 {
			reg.timeSaved.Add(int64(saved))
		}
		c.record(newRecord(d.EntityType, d.Operation, len(d.Keys), elapsed, 0, true))
		return out, nil
	}

	if d.Fallback == nil {
		return nil, ErrNoFallback
	}
	start := time.Now()
	out, err := d.Fallback(ctx)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.fallbackRuns++
	c.fallbackExec += elapsed
	c.mu.Unlock()

	c.record(newRecord(d.EntityType, d.Operation, len(d.Keys), elapsed, 0, false))
	return out, err
}

// ObserveFetch implements batch.Observer. Single-key uncached fetches feed
// the N+1 detector: many of them for one entity type inside a window is the
// pattern batching exists to remove.
func (c *Coordinator) ObserveFetch(o batch.Observation) {
	c.record(newRecord(o.EntityType, "fetch", o.KeyCount, o.Duration, o.CacheHitRatio, o.Batched))
	if o.KeyCount == 1 && o.CacheHitRatio == 0 {
		fp := fingerprint(o.EntityType, "fetch", nil)
		c.observeFingerprint(fp, o.EntityType, "fetch", nil)
	}
}

// ObserveLoad implements relations.Analyzer.
func (c *Coordinator) ObserveLoad(entityType string, keyCount int, relationNames []string, elapsed time.Duration) {
	c.record(newRecord(entityType, "load_with_relations", keyCount, elapsed, 0, true))
}

func (c *Coordinator) observeFingerprint(fp uint64, entityType, operation string, relationNames []string) {
	alert, count := c.detector.observe(fp)
	if !alert {
		return
	}
	shape := describeShape(entityType, operation, relationNames)
	c.logger.WithFields(logrus.Fields{
		"shape": shape,
		"count": count,
	}).Warn("possible N+1 query pattern")
	c.emitter.Emit(events.Event{
		Type:      events.TypeNPlusOne,
		Key:       shape,
		Value:     float64(count),
		Timestamp: time.Now(),
		Service:   c.cfg.ServiceName,
	})
}

func (c *Coordinator) record(rec QueryMetricRecord) {
	slow := rec.ExecutionTime >= c.cfg.SlowQueryThreshold

	c.mu.Lock()
	c.history.push(rec)
	c.totalQueries++
	c.totalExec += rec.ExecutionTime
	if rec.Batched {
		c.batchedCount++
	}
	c.hitRatioSum += rec.CacheHitRatio
	if slow {
		c.slow = append(c.slow, rec)
		if len(c.slow) > c.cfg.MaxSlowQueries {
			c.slow = c.slow[len(c.slow)-c.cfg.MaxSlowQueries:]
		}
	}
	c.mu.Unlock()

	if slow {
		c.logger.WithFields(logrus.Fields{
			"entity_type": rec.EntityType,
			"operation":   rec.Operation,
			"duration_ms": rec.ExecutionTime.Milliseconds(),
		}).Warn("slow query")
		c.emitter.Emit(events.Event{
			Type:      events.TypeSlowQuery,
			Key:       rec.EntityType + "." + rec.Operation,
			Value:     float64(rec.ExecutionTime.Milliseconds()),
			Timestamp: rec.Timestamp,
			Service:   c.cfg.ServiceName,
		})
	}
}

func (c *Coordinator) avgFallbackTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fallbackRuns == 0 {
		return 0
	}
	return c.fallbackExec / time.Duration(c.fallbackRuns)
}

// History returns the retained metric records, oldest first.
func (c *Coordinator) History() []QueryMetricRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.snapshot()
}

// Report summarizes aggregated metrics and derives recommendations.
func (c *Coordinator) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{
		TotalQueries: c.totalQueries,
		SlowQueries:  append([]QueryMetricRecord(nil), c.slow...),
	}
	if c.totalQueries > 0 {
		r.AvgExecutionTime = c.totalExec / time.Duration(c.totalQueries)
		r.BatchedRatio = float64(c.batchedCount) / float64(c.totalQueries)
		r.CacheHitRatio = c.hitRatioSum / float64(c.totalQueries)
	}
	for _, reg := range c.strategies {
		r.Strategies = append(r.Strategies, reg.snapshot())
	}
	r.Recommendations = c.recommendationsLocked(r)
	return r
}

func (c *Coordinator) recommendationsLocked(r Report) []string {
	var recs []string
	if r.TotalQueries == 0 {
		return recs
	}
	if r.BatchedRatio < 0.5 {
		recs = append(recs, fmt.Sprintf("only %.0f%% of queries are batched; route multi-key loads through a batch loader", r.BatchedRatio*100))
	}
	if r.CacheHitRatio < 0.3 {
		recs = append(recs, fmt.Sprintf("cache hit ratio is %.0f%%; consider longer TTLs or warming frequently read entities", r.CacheHitRatio*100))
	}
	if len(r.SlowQueries) > 0 {
		recs = append(recs, fmt.Sprintf("%d queries exceeded the %s slow query threshold; inspect Report().SlowQueries", len(r.SlowQueries), c.cfg.SlowQueryThreshold))
	}
	var anyApplied bool
	for _, s := range r.Strategies {
		if s.Counters.Applied > 0 {
			anyApplied = true
			break
		}
	}
	if len(r.Strategies) > 0 && !anyApplied {
		recs = append(recs, "no optimization strategy has applied yet; check descriptor shapes against strategy applicability")
	}
	return recs
}

// Reset clears aggregated metrics and fingerprint windows. Strategy
// registrations and counters survive.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.history.reset()
	c.slow = nil
	c.totalQueries = 0
	c.totalExec = 0
	c.batchedCount = 0
	c.hitRatioSum = 0
	c.fallbackRuns = 0
	c.fallbackExec = 0
	c.mu.Unlock()
	c.detector.reset()
}

// Stop halts the background janitor. The coordinator remains usable for
// observation afterwards.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Coordinator) janitor() {
	ticker := time.NewTicker(c.cfg.DetectionWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.detector.mu.Lock()
			c.detector.pruneLocked(time.Now())
			c.detector.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
