package optimizer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/loadplane/go-entity-cache/cache"
	"github.com/loadplane/go-entity-cache/relations"
)

// Descriptor describes one query about to execute. Fallback is the direct,
// unoptimized execution path and is required: the coordinator runs it when
// no strategy applies.
type Descriptor struct {
	EntityType string
	Operation  string
	Keys       []string
	Relations  []string
	Fallback   func(ctx context.Context) (any, error)
}

// Strategy is one optimization tactic the coordinator can apply to a query.
type Strategy interface {
	// ID names the strategy in reports.
	ID() string
	// IsApplicable reports whether the strategy can serve the descriptor.
	IsApplicable(d Descriptor) bool
	// Apply executes the query through the strategy.
	Apply(ctx context.Context, d Descriptor) (any, error)
}

// Counters holds per-strategy application totals.
type Counters struct {
	Applied   int64
	Succeeded int64
	TimeSaved time.Duration
}

// StrategySnapshot pairs a strategy id with its counters for reporting.
type StrategySnapshot struct {
	ID       string
	Counters Counters
}

type registeredStrategy struct {
	strategy  Strategy
	applied   atomic.Int64
	succeeded atomic.Int64
	timeSaved atomic.Int64
}

func (r *registeredStrategy) snapshot() StrategySnapshot {
	return StrategySnapshot{
		ID: r.strategy.ID(),
		Counters: Counters{
			Applied:   r.applied.Load(),
			Succeeded: r.succeeded.Load(),
			TimeSaved: time.Duration(r.timeSaved.Load()),
		},
	}
}

// CachingStrategy serves single-key lookups through the cache service,
// populating the cache from the descriptor's fallback on a miss.
type CachingStrategy struct {
	Cache cache.Service
	Keys  cache.KeyEncoder
	TTL   time.Duration
}

// ID implements Strategy.
func (s *CachingStrategy) ID() string { return "caching" }

// IsApplicable accepts single-key reads with no relations.
func (s *CachingStrategy) IsApplicable(d Descriptor) bool {
	return len(d.Keys) == 1 && len(d.Relations) == 0 && d.Fallback != nil
}

// Apply implements Strategy.
func (s *CachingStrategy) Apply(ctx context.Context, d Descriptor) (any, error) {
	key := s.Keys.EncodeKey(d.EntityType, d.Keys[0])
	var out any
	var opts []cache.WriteOption
	if s.TTL > 0 {
		opts = append(opts, cache.WithTTL(s.TTL))
	}
	err := s.Cache.GetOrSet(ctx, key, &out, func(ctx context.Context) (any, error) {
		return d.Fallback(ctx)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchingStrategy routes multi-key and relation-bearing queries through an
// entity loader so sibling keys coalesce into batched fetches.
type BatchingStrategy struct {
	Loader *relations.EntityLoader
}

// ID implements Strategy.
func (s *BatchingStrategy) ID() string { return "batching" }

// IsApplicable accepts queries with several keys or requested relations,
// provided a source is registered for the entity type.
func (s *BatchingStrategy) IsApplicable(d Descriptor) bool {
	if len(d.Keys) == 0 {
		return false
	}
	if len(d.Keys) < 2 && len(d.Relations) == 0 {
		return false
	}
	return s.Loader.HasSource(d.EntityType)
}

// Apply implements Strategy.
func (s *BatchingStrategy) Apply(ctx context.Context, d Descriptor) (any, error) {
	res, err := s.Loader.LoadWithRelations(ctx, d.EntityType, d.Keys, d.Relations)
	if err != nil {
		return nil, err
	}
	return res, nil
}
