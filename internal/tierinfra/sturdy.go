package tierinfra

import (
	"context"
	"path"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdyTier adapts a sturdyc client to the tier contract. It trades the
// canonical FIFO semantics for sturdyc's sharded, stampede-protected store.
// Per-entry TTLs are not supported by the client: the TTL passed at
// construction applies to every entry, and Set ignores its ttl argument.
type SturdyTier struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdyTier builds the adapter. Capacity, shard count, TTL and eviction
// percentage map directly onto the sturdyc constructor.
func NewSturdyTier(capacity, numShards int, ttl time.Duration, evictionPercentage int) *SturdyTier {
	return &SturdyTier{
		client: sturdyc.New[[]byte](capacity, numShards, ttl, evictionPercentage),
	}
}

// Name implements the tier contract.
func (t *SturdyTier) Name() string { return "sturdyc" }

// Get implements the tier contract.
func (t *SturdyTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := t.client.Get(key)
	return data, ok, nil
}

// Set implements the tier contract. The entry expires after the client-wide
// TTL; ttl is accepted for interface compatibility only.
func (t *SturdyTier) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	t.client.Set(key, data)
	return nil
}

// Delete implements the tier contract.
func (t *SturdyTier) Delete(_ context.Context, keys ...string) (int, error) {
	removed := 0
	for _, key := range keys {
		if _, ok := t.client.Get(key); ok {
			removed++
		}
		t.client.Delete(key)
	}
	return removed, nil
}

// Keys implements the tier contract by scanning the client's key space.
func (t *SturdyTier) Keys(_ context.Context, pattern string) ([]string, error) {
	all := t.client.ScanKeys()
	if pattern == "*" {
		return all, nil
	}
	var out []string
	for _, key := range all {
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			out = append(out, key)
		}
	}
	return out, nil
}
