package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidResultType is returned by the generic helpers when a cached
// payload cannot be decoded into the requested type.
var ErrInvalidResultType = errors.New("cache: result does not match requested type")

// FactoryFn produces a value for a key on a cache miss. It must not perform
// blocking synchronous work beyond the fetch itself: every caller coalesced
// onto the same flight waits for it.
type FactoryFn func(ctx context.Context) (any, error)

// Tier is one layer of the multi-tier cache. Implementations may be
// in-process or networked; a networked tier is expected to fail
// independently, and the Service treats its errors as misses.
type Tier interface {
	// Name identifies the tier for configuration and logging.
	Name() string

	// Get returns the stored bytes for key, reporting presence explicitly.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key with the given expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes the given keys, returning how many were present.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Keys enumerates stored keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Service exposes the multi-tier caching operations. Values are opaque: the
// service serializes them with the configured codec on write and decodes into
// the caller-supplied destination on read.
type Service interface {
	// Get reads key into dest. It checks the fastest tier first unless a
	// specific tier is requested, back-filling faster tiers on lower-tier
	// hits. The bool reports whether a usable entry was found.
	Get(ctx context.Context, key string, dest any, opts ...ReadOption) (bool, error)

	// Set serializes value and writes it to the selected tiers (default all).
	Set(ctx context.Context, key string, value any, opts ...WriteOption) error

	// Invalidate removes entries matching a glob-style key pattern, or with
	// ByTags every entry carrying the given tag, across selected tiers.
	// It returns the number of entries removed.
	Invalidate(ctx context.Context, patternOrTag string, opts ...InvalidateOption) (int, error)

	// GetOrSet reads key into dest, invoking factory on a miss and caching
	// its result. Concurrent calls for the same key share one factory flight.
	GetOrSet(ctx context.Context, key string, dest any, factory FactoryFn, opts ...WriteOption) error

	// HitCount reports how often key has been served from cache since the
	// service started.
	HitCount(key string) int64

	// Stop halts background sweeps and releases timer resources.
	Stop()
}

// Get is a type-safe wrapper around Service.Get.
func Get[T any](ctx context.Context, s Service, key string, opts ...ReadOption) (T, bool, error) {
	var out T
	ok, err := s.Get(ctx, key, &out, opts...)
	return out, ok, err
}

// GetOrSet is a type-safe wrapper around Service.GetOrSet.
func GetOrSet[T any](ctx context.Context, s Service, key string, factory func(ctx context.Context) (T, error), opts ...WriteOption) (T, error) {
	var out T
	err := s.GetOrSet(ctx, key, &out, func(ctx context.Context) (any, error) {
		return factory(ctx)
	}, opts...)
	return out, err
}

// ReadOption adjusts a single Get call.
type ReadOption func(*readOptions)

type readOptions struct {
	tier string
}

// FromTier restricts the read to the named tier, skipping precedence order.
func FromTier(name string) ReadOption {
	return func(o *readOptions) { o.tier = name }
}

// WriteOption adjusts a single Set or GetOrSet call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	ttl   time.Duration
	tags  []string
	tiers []string
}

// WithTTL overrides the service default TTL for this write.
func WithTTL(ttl time.Duration) WriteOption {
	return func(o *writeOptions) { o.ttl = ttl }
}

// WithTags attaches invalidation tags to the entry being written.
func WithTags(tags ...string) WriteOption {
	return func(o *writeOptions) { o.tags = append(o.tags, tags...) }
}

// ToTiers restricts the write to the named tiers.
func ToTiers(names ...string) WriteOption {
	return func(o *writeOptions) { o.tiers = append(o.tiers, names...) }
}

// InvalidateOption adjusts a single Invalidate call.
type InvalidateOption func(*invalidateOptions)

type invalidateOptions struct {
	byTags bool
	tiers  []string
}

// ByTags switches Invalidate from key-pattern matching to tag membership.
func ByTags() InvalidateOption {
	return func(o *invalidateOptions) { o.byTags = true }
}

// InTiers restricts the invalidation to the named tiers.
func InTiers(names ...string) InvalidateOption {
	return func(o *invalidateOptions) { o.tiers = append(o.tiers, names...) }
}
