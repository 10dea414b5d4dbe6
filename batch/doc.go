// Package batch coalesces concurrent single-key loads into batched fetches.
//
// A Loader owns one entity type and one fetch function. Load calls arriving
// while a coalescing window is open are merged into a single key list; the
// window closes when it reaches the configured maximum batch size or when
// the window timer fires, whichever comes first. Each distinct key is
// fetched at most once per window, and duplicate keys share the same
// in-flight result.
//
// The fetch function receives an ordered key list and must return a result
// list of the same length and order, with a nil slot for each key that has
// no entity; absence is a valid outcome, not an error. A fetch error
// rejects every caller waiting on that window and leaves the cache untouched,
// so the next load for the same key triggers a fresh attempt.
//
// When a cache service is attached, loads consult it before joining a
// window and successful fetch results are written back per key, tagged
// `entityType:key` for targeted invalidation.
package batch
