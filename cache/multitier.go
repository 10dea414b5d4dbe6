package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/loadplane/go-entity-cache/events"
)

// envelope is the per-entry metadata that travels with a payload through
// every tier. It is encoded with the same codec as the payload itself.
type envelope struct {
	Payload    []byte        `json:"payload" msgpack:"payload"`
	CreatedAt  time.Time     `json:"created_at" msgpack:"created_at"`
	TTL        time.Duration `json:"ttl" msgpack:"ttl"`
	Tags       []string      `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Compressed bool          `json:"compressed,omitempty" msgpack:"compressed,omitempty"`
	Size       int           `json:"size" msgpack:"size"`
}

func (e *envelope) age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

func (e *envelope) expired(now time.Time) bool {
	return e.age(now) >= e.TTL
}

func (e *envelope) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// multiTier is the default Service implementation: an ordered tier chain
// with cache-aside back-fill, coalesced factories, and fail-open remote
// tiers.
type multiTier struct {
	cfg     Config
	codec   Codec
	tiers   []Tier
	logger  logrus.FieldLogger
	emitter events.Emitter

	flights singleflight.Group
	hits    *xsync.MapOf[string, *atomic.Int64]
}

func (s *multiTier) initCounters() {
	s.hits = xsync.NewMapOf[string, *atomic.Int64]()
}

func (s *multiTier) emit(t events.Type, key string, value float64) {
	s.emitter.Emit(events.Event{
		Type:      t,
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
		Service:   s.cfg.ServiceName,
	})
}

// lookup walks the tier chain for key. It returns the decoded envelope, the
// raw encoded entry, and the index of the tier that served it. Expired
// entries are removed best-effort and treated as misses; tier errors degrade
// to misses.
func (s *multiTier) lookup(ctx context.Context, key, tierName string) (*envelope, []byte, int, bool) {
	now := time.Now()
	for i, tier := range s.tiers {
		if tierName != "" && tier.Name() != tierName {
			continue
		}
		raw, ok, err := tier.Get(ctx, key)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"tier": tier.Name(), "key": key}).
				Warn("cache: tier read failed, treating as miss")
			continue
		}
		if !ok {
			continue
		}
		var env envelope
		if err := s.codec.Unmarshal(raw, &env); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("cache: undecodable entry dropped")
			_, _ = tier.Delete(ctx, key)
			continue
		}
		if env.expired(now) {
			_, _ = tier.Delete(ctx, key)
			continue
		}
		return &env, raw, i, true
	}
	return nil, nil, 0, false
}

func (s *multiTier) decodeInto(env *envelope, dest any) error {
	payload := env.Payload
	if env.Compressed {
		var err error
		if payload, err = decompressPayload(payload); err != nil {
			return fmt.Errorf("cache: decompress: %w", err)
		}
	}
	if err := s.codec.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResultType, err)
	}
	return nil
}

// backfill copies a lower-tier hit into every faster tier, preserving the
// entry's remaining lifetime.
func (s *multiTier) backfill(ctx context.Context, key string, raw []byte, env *envelope, servedBy int) {
	remaining := env.TTL - env.age(time.Now())
	if remaining <= 0 {
		return
	}
	for i := 0; i < servedBy; i++ {
		if err := s.tiers[i].Set(ctx, key, raw, remaining); err != nil {
			s.logger.WithError(err).WithField("tier", s.tiers[i].Name()).
				Warn("cache: back-fill failed")
		}
	}
}

func (s *multiTier) countHit(key string) {
	counter, _ := s.hits.LoadOrCompute(key, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	counter.Add(1)
}

// HitCount reports how often key has been served from cache since startup.
func (s *multiTier) HitCount(key string) int64 {
	if counter, ok := s.hits.Load(key); ok {
		return counter.Load()
	}
	return 0
}

func (s *multiTier) Get(ctx context.Context, key string, dest any, opts ...ReadOption) (bool, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	env, raw, servedBy, ok := s.lookup(ctx, key, o.tier)
	if !ok {
		s.emit(events.TypeMiss, key, 0)
		return false, nil
	}
	if err := s.decodeInto(env, dest); err != nil {
		return false, err
	}
	if o.tier == "" {
		s.backfill(ctx, key, raw, env, servedBy)
	}
	s.countHit(key)
	s.emit(events.TypeHit, key, 0)
	return true, nil
}

func (s *multiTier) Set(ctx context.Context, key string, value any, opts ...WriteOption) error {
	o := s.writeOptions(ctx, opts)

	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	compressed := false
	if s.cfg.CompressionThreshold > 0 && len(payload) > s.cfg.CompressionThreshold {
		if payload, err = compressPayload(payload); err != nil {
			return fmt.Errorf("cache: compress %q: %w", key, err)
		}
		compressed = true
	}

	env := envelope{
		Payload:    payload,
		CreatedAt:  time.Now(),
		TTL:        o.ttl,
		Tags:       o.tags,
		Compressed: compressed,
		Size:       len(payload),
	}
	raw, err := s.codec.Marshal(&env)
	if err != nil {
		return fmt.Errorf("cache: encode envelope for %q: %w", key, err)
	}

	for _, tier := range s.tiers {
		if !tierSelected(tier, o.tiers) {
			continue
		}
		if err := tier.Set(ctx, key, raw, o.ttl); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"tier": tier.Name(), "key": key}).
				Warn("cache: tier write failed, skipping")
		}
	}
	return nil
}

func (s *multiTier) Invalidate(ctx context.Context, patternOrTag string, opts ...InvalidateOption) (int, error) {
	var o invalidateOptions
	for _, opt := range opts {
		opt(&o)
	}

	removed := 0
	for _, tier := range s.tiers {
		if !tierSelected(tier, o.tiers) {
			continue
		}
		var victims []string
		var err error
		if o.byTags {
			victims, err = s.taggedKeys(ctx, tier, patternOrTag)
		} else {
			victims, err = tier.Keys(ctx, patternOrTag)
		}
		if err != nil {
			s.logger.WithError(err).WithField("tier", tier.Name()).
				Warn("cache: key enumeration failed, skipping tier")
			continue
		}
		if len(victims) == 0 {
			continue
		}
		n, err := tier.Delete(ctx, victims...)
		if err != nil {
			s.logger.WithError(err).WithField("tier", tier.Name()).
				Warn("cache: invalidation failed, skipping tier")
			continue
		}
		removed += n
	}
	return removed, nil
}

// taggedKeys enumerates every key in the tier whose entry carries tag.
func (s *multiTier) taggedKeys(ctx context.Context, tier Tier, tag string) ([]string, error) {
	keys, err := tier.Keys(ctx, "*")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, key := range keys {
		raw, ok, err := tier.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var env envelope
		if err := s.codec.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.hasTag(tag) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *multiTier) GetOrSet(ctx context.Context, key string, dest any, factory FactoryFn, opts ...WriteOption) error {
	env, raw, servedBy, ok := s.lookup(ctx, key, "")
	if ok {
		if err := s.decodeInto(env, dest); err != nil {
			return err
		}
		s.backfill(ctx, key, raw, env, servedBy)
		s.countHit(key)
		if s.cfg.StaleWhileRevalidate && s.stale(env) {
			s.emit(events.TypeStaleServe, key, 0)
			s.refreshAsync(ctx, key, factory, opts)
		} else {
			s.emit(events.TypeHit, key, 0)
		}
		return nil
	}

	s.emit(events.TypeMiss, key, 0)
	payload, err, _ := s.flights.Do("fill::"+key, func() (any, error) {
		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Set(ctx, key, value, opts...); err != nil {
			return nil, err
		}
		return s.codec.Marshal(value)
	})
	if err != nil {
		return err
	}
	if err := s.codec.Unmarshal(payload.([]byte), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResultType, err)
	}
	return nil
}

func (s *multiTier) stale(env *envelope) bool {
	threshold := time.Duration(float64(env.TTL) * s.cfg.StalenessFraction)
	return env.age(time.Now()) > threshold
}

// refreshAsync re-runs the factory in the background and overwrites the
// entry. Failures are logged and never reach the caller that was served the
// stale value. Refreshes for the same key collapse onto one flight.
func (s *multiTier) refreshAsync(ctx context.Context, key string, factory FactoryFn, opts []WriteOption) {
	bg := context.WithoutCancel(ctx)
	go func() {
		_, err, _ := s.flights.Do("refresh::"+key, func() (any, error) {
			value, err := factory(bg)
			if err != nil {
				return nil, err
			}
			return nil, s.Set(bg, key, value, opts...)
		})
		if err != nil {
			s.logger.WithError(err).WithField("key", key).
				Warn("cache: background refresh failed")
		}
	}()
}

func (s *multiTier) Stop() {
	for _, tier := range s.tiers {
		if stopper, ok := tier.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}
}

func (s *multiTier) writeOptions(ctx context.Context, opts []WriteOption) writeOptions {
	o := writeOptions{ttl: s.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = s.cfg.DefaultTTL
	}
	o.tags = dedupeStrings(append(o.tags, TagsFromContext(ctx)...))
	return o
}

func tierSelected(tier Tier, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if tier.Name() == name {
			return true
		}
	}
	return false
}
