package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loadplane/go-entity-cache/cache"
)

// FetchFunc loads entities for an ordered key list. It must return a list of
// the same length and order, nil for keys with no entity, and an error only
// when the whole call failed.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]*V, error)

// Observation describes one executed fetch or cache-served load, reported to
// an Observer for query-pattern analysis.
type Observation struct {
	EntityType    string
	KeyCount      int
	Duration      time.Duration
	CacheHitRatio float64
	Batched       bool
}

// Observer receives fetch observations. The optimizer coordinator implements
// this to aggregate metrics and detect repeated unbatched patterns.
type Observer interface {
	ObserveFetch(Observation)
}

// Loader coalesces loads for one entity type. All methods are safe for
// concurrent use.
type Loader[K comparable, V any] struct {
	cfg      Config
	fetch    FetchFunc[K, V]
	cache    cache.Service
	keys     cache.KeyEncoder
	logger   logrus.FieldLogger
	observer Observer

	mu      sync.Mutex
	current *window[K, V]
}

// Option customizes a Loader at construction time.
type Option[K comparable, V any] func(*Loader[K, V])

// WithCache attaches a cache service for per-key memoization of fetch
// results. A nil encoder falls back to the default structural encoder.
func WithCache[K comparable, V any](svc cache.Service, enc cache.KeyEncoder) Option[K, V] {
	return func(l *Loader[K, V]) {
		l.cache = svc
		if enc != nil {
			l.keys = enc
		}
	}
}

// WithObserver attaches a fetch observer.
func WithObserver[K comparable, V any](obs Observer) Option[K, V] {
	return func(l *Loader[K, V]) { l.observer = obs }
}

// WithLogger overrides the default logger.
func WithLogger[K comparable, V any](logger logrus.FieldLogger) Option[K, V] {
	return func(l *Loader[K, V]) { l.logger = logger }
}

// New constructs a Loader. An invalid configuration or nil fetch function is
// fatal: the loader must not start.
func New[K comparable, V any](cfg Config, fetch FetchFunc[K, V], opts ...Option[K, V]) (*Loader[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("batch: invalid config for %q: %w", cfg.EntityType, err)
	}
	if fetch == nil {
		return nil, fmt.Errorf("batch: %q: fetch function is required", cfg.EntityType)
	}
	l := &Loader[K, V]{
		cfg:    cfg,
		fetch:  fetch,
		keys:   cache.NewDefaultKeyEncoder(),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// EntityType names the entities this loader serves.
func (l *Loader[K, V]) EntityType() string { return l.cfg.EntityType }

// thunk is the per-key pending result shared by every caller that asked for
// the key within one window.
type thunk[V any] struct {
	done  chan struct{}
	value *V
	err   error
}

// window is one coalescing span: the ordered distinct keys collected so far
// and the context that will drive the dispatch.
type window[K comparable, V any] struct {
	keys   []K
	thunks map[K]*thunk[V]
	timer  *time.Timer
	ctx    context.Context
	closed bool
}

// Load returns the entity for key: from cache when present and fresh,
// otherwise by joining the open window and waiting for its fetch. A nil
// result means the entity does not exist.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (*V, error) {
	if v, ok := l.cachedValue(ctx, key); ok {
		return v, nil
	}
	th := l.enqueue(ctx, key)
	<-th.done
	return th.value, th.err
}

// LoadMany resolves every key preserving input order; duplicates are allowed
// and deduplicated against the same in-flight fetch. On any fetch failure the
// first error is returned and the partial results are discarded.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]*V, error) {
	results := make([]*V, len(keys))
	thunks := make(map[K]*thunk[V], len(keys))

	for _, key := range keys {
		if _, ok := thunks[key]; ok {
			continue
		}
		if v, hit := l.cachedValue(ctx, key); hit {
			resolved := &thunk[V]{done: make(chan struct{}), value: v}
			close(resolved.done)
			thunks[key] = resolved
			continue
		}
		thunks[key] = l.enqueue(ctx, key)
	}

	for i, key := range keys {
		th := thunks[key]
		<-th.done
		if th.err != nil {
			return nil, th.err
		}
		results[i] = th.value
	}
	return results, nil
}

// Clear drops the cached entry for key. The next load fetches fresh.
func (l *Loader[K, V]) Clear(ctx context.Context, key K) error {
	if l.cache == nil {
		return nil
	}
	_, err := l.cache.Invalidate(ctx, l.keys.EncodeKey(l.cfg.EntityType, key))
	return err
}

// ClearAll drops every cached entry for this loader's entity type.
func (l *Loader[K, V]) ClearAll(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	_, err := l.cache.Invalidate(ctx, l.keys.EncodeKey(l.cfg.EntityType, "*"))
	return err
}

func (l *Loader[K, V]) cachedValue(ctx context.Context, key K) (*V, bool) {
	if l.cache == nil {
		return nil, false
	}
	var v V
	ok, err := l.cache.Get(ctx, l.keys.EncodeKey(l.cfg.EntityType, key), &v)
	if err != nil {
		l.logger.WithError(err).WithField("entity", l.cfg.EntityType).
			Warn("batch: cache read failed, falling through to fetch")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	l.observe(Observation{
		EntityType:    l.cfg.EntityType,
		KeyCount:      1,
		CacheHitRatio: 1,
		Batched:       false,
	})
	return &v, true
}

// enqueue joins the open window, opening one if necessary. Reaching the
// maximum batch size closes the window immediately; otherwise the window
// timer closes it.
func (l *Loader[K, V]) enqueue(ctx context.Context, key K) *thunk[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current
	if w == nil || w.closed {
		w = &window[K, V]{
			thunks: make(map[K]*thunk[V]),
			ctx:    context.WithoutCancel(ctx),
		}
		w.timer = time.AfterFunc(l.cfg.Window, func() { l.close(w) })
		l.current = w
	}

	if th, ok := w.thunks[key]; ok {
		return th
	}
	th := &thunk[V]{done: make(chan struct{})}
	w.thunks[key] = th
	w.keys = append(w.keys, key)

	if len(w.keys) >= l.cfg.MaxBatchSize {
		l.closeLocked(w)
	}
	return th
}

func (l *Loader[K, V]) close(w *window[K, V]) {
	l.mu.Lock()
	if w.closed {
		l.mu.Unlock()
		return
	}
	l.closeLocked(w)
	l.mu.Unlock()
}

// closeLocked seals the window and hands it to a dispatcher goroutine. The
// window runs to completion once dispatched: callers cannot abort it.
// Windows never exceed MaxBatchSize keys, so each dispatch is one fetch.
func (l *Loader[K, V]) closeLocked(w *window[K, V]) {
	w.closed = true
	w.timer.Stop()
	if l.current == w {
		l.current = nil
	}
	go l.runWindow(w)
}

func (l *Loader[K, V]) runWindow(w *window[K, V]) {
	start := time.Now()
	results, err := l.fetch(w.ctx, w.keys)
	elapsed := time.Since(start)

	if err == nil && len(results) != len(w.keys) {
		err = fmt.Errorf("fetch returned %d results for %d keys", len(results), len(w.keys))
	}

	l.observe(Observation{
		EntityType: l.cfg.EntityType,
		KeyCount:   len(w.keys),
		Duration:   elapsed,
		Batched:    true,
	})

	if err != nil {
		ferr := &BatchFetchError{EntityType: l.cfg.EntityType, Err: err}
		for _, key := range w.keys {
			th := w.thunks[key]
			th.err = ferr
			close(th.done)
		}
		return
	}

	for i, key := range w.keys {
		th := w.thunks[key]
		th.value = results[i]
		close(th.done)
		if results[i] != nil && l.cache != nil {
			l.store(w.ctx, key, results[i])
		}
	}
}

// store writes one fetched entity back to the cache, tagged for targeted
// invalidation.
func (l *Loader[K, V]) store(ctx context.Context, key K, value *V) {
	opts := []cache.WriteOption{
		cache.WithTags(fmt.Sprintf("%s:%v", l.cfg.EntityType, key)),
	}
	if l.cfg.TTL > 0 {
		opts = append(opts, cache.WithTTL(l.cfg.TTL))
	}
	if err := l.cache.Set(ctx, l.keys.EncodeKey(l.cfg.EntityType, key), *value, opts...); err != nil {
		l.logger.WithError(err).WithField("entity", l.cfg.EntityType).
			Warn("batch: cache write failed")
	}
}

func (l *Loader[K, V]) observe(obs Observation) {
	if l.observer != nil {
		l.observer.ObserveFetch(obs)
	}
}
