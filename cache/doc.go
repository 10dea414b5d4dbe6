// Package cache provides a multi-tier, read-through cache with tag-based
// invalidation and stale-while-revalidate semantics.
//
// # Overview
//
// A Service is an ordered chain of cache tiers. Reads consult the fastest
// tier first and back-fill it on a hit in a slower tier; writes fan out to
// every tier by default. Values are serialized with a configurable codec
// (JSON or msgpack) and transparently gzip-compressed once the serialized
// payload crosses the configured threshold.
//
// Tiers are pluggable and independently unavailable: a failing tier is
// logged and treated as a miss for reads and a no-op for writes. Caching is
// strictly an optimization layer: every operation stays correct with all
// tiers down, only slower.
//
// # Basic Usage
//
//	svc, err := cache.NewService(cache.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	user, err := cache.GetOrSet(ctx, svc, "user::42", func(ctx context.Context) (User, error) {
//		return userStore.Find(ctx, "42")
//	})
//
// Concurrent GetOrSet calls for the same key are coalesced: the factory runs
// once per key per flight and every waiter shares its result.
//
// # Staleness
//
// An entry is valid until createdAt+ttl and becomes stale once
// createdAt+ttl*StalenessFraction has passed. With stale-while-revalidate
// enabled, GetOrSet serves the stale value immediately and refreshes the
// entry in the background; refresh failures are logged and never surface to
// the caller that triggered them.
//
// # Invalidation
//
// Invalidate removes entries by glob-style key pattern or, with ByTags, by
// tag membership across every selected tier. Tags attach at write time via
// WithTags or travel on the context via WithContextTags.
package cache
