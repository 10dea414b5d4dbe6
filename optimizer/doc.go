// Package optimizer coordinates pluggable query optimization strategies and
// analyzes query patterns.
//
// A Coordinator checks its registered strategies in a fixed precedence order
// (register the caching strategy before the batching strategy) and invokes
// the first applicable one; when none applies, the descriptor's fallback
// runs directly. Every descriptor must supply a fallback.
//
// Alongside execution, the coordinator aggregates per-query metric records
// in a bounded ring buffer and fingerprints query shapes inside a sliding
// window. A fingerprint crossing the configured threshold raises an N+1
// pattern alert exactly once per window. Aggregates feed human-readable
// optimization recommendations.
package optimizer
