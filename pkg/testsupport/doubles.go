// Package testsupport provides fixture helpers and controllable doubles for
// exercising loaders and cache tiers in tests.
package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loadplane/go-entity-cache/cache"
)

// Record is a minimal entity used by tests across packages.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Fetcher is a controllable batch fetch double over an in-memory record
// set. It tracks every batch it receives and can inject latency or
// failures.
type Fetcher struct {
	mu      sync.Mutex
	records map[string]Record
	latency time.Duration
	nextErr error
	batches [][]string
}

// NewFetcher builds a Fetcher preloaded with records.
func NewFetcher(records ...Record) *Fetcher {
	f := &Fetcher{records: make(map[string]Record, len(records))}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

// Fetch satisfies the batch fetch function shape: results align with keys,
// with nil slots for unknown ids.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) ([]*Record, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), keys...))
	latency := f.latency
	err := f.nextErr
	f.nextErr = nil
	f.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]*Record, len(keys))
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, key := range keys {
		if r, ok := f.records[key]; ok {
			rc := r
			out[i] = &rc
		}
	}
	return out, nil
}

// Put adds or replaces a record.
func (f *Fetcher) Put(r Record) {
	f.mu.Lock()
	f.records[r.ID] = r
	f.mu.Unlock()
}

// FailNext makes the next Fetch call return err.
func (f *Fetcher) FailNext(err error) {
	f.mu.Lock()
	f.nextErr = err
	f.mu.Unlock()
}

// SetLatency delays every Fetch call by d.
func (f *Fetcher) SetLatency(d time.Duration) {
	f.mu.Lock()
	f.latency = d
	f.mu.Unlock()
}

// Calls returns the number of Fetch invocations so far.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// Batches returns a copy of the key batches received, in call order.
func (f *Fetcher) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	copy(out, f.batches)
	return out
}

// FlakyTier wraps a cache tier and fails every operation while tripped,
// for exercising fail-open behavior.
type FlakyTier struct {
	Inner cache.Tier

	mu      sync.Mutex
	failing error
}

// Trip makes all subsequent operations fail with err until Restore.
func (f *FlakyTier) Trip(err error) {
	if err == nil {
		err = fmt.Errorf("tier unavailable")
	}
	f.mu.Lock()
	f.failing = err
	f.mu.Unlock()
}

// Restore clears the failure state.
func (f *FlakyTier) Restore() {
	f.mu.Lock()
	f.failing = nil
	f.mu.Unlock()
}

func (f *FlakyTier) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing
}

// Name implements cache.Tier.
func (f *FlakyTier) Name() string { return "flaky(" + f.Inner.Name() + ")" }

// Get implements cache.Tier.
func (f *FlakyTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.fail(); err != nil {
		return nil, false, err
	}
	return f.Inner.Get(ctx, key)
}

// Set implements cache.Tier.
func (f *FlakyTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Inner.Set(ctx, key, data, ttl)
}

// Delete implements cache.Tier.
func (f *FlakyTier) Delete(ctx context.Context, keys ...string) (int, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.Inner.Delete(ctx, keys...)
}

// Keys implements cache.Tier.
func (f *FlakyTier) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Inner.Keys(ctx, pattern)
}
