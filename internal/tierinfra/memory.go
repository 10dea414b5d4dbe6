// Package tierinfra holds the in-process cache tier engines: the canonical
// FIFO-by-creation memory tier and a sturdyc-backed alternative.
package tierinfra

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// MemoryConfig bounds and tunes a MemoryTier.
type MemoryConfig struct {
	// MaxItems caps the number of entries; zero means unbounded.
	MaxItems int

	// MaxBytes caps the total stored payload size; zero means unbounded.
	MaxBytes int64

	// SweepInterval is how often expired entries are removed regardless of
	// access. Zero disables the sweeper.
	SweepInterval time.Duration

	// OnEvict, when set, is called with each key removed under capacity
	// pressure. It runs outside the tier lock.
	OnEvict func(key string)
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
	slot      *list.Element // position in the creation-order list
}

// MemoryTier is the canonical in-process tier: bounded by item count and
// total bytes. On overflow it evicts the entry with the oldest creation
// timestamp; overwriting a key refreshes its position. Expired entries are
// dropped passively on read and actively by a periodic sweep.
type MemoryTier struct {
	cfg MemoryConfig

	mu         sync.Mutex
	items      map[string]*memoryItem
	order      *list.List // live keys, oldest creation first
	totalBytes int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryTier builds the tier and starts its sweeper when an interval is
// configured. Call Stop to release the sweeper.
func NewMemoryTier(cfg MemoryConfig) *MemoryTier {
	t := &MemoryTier{
		cfg:   cfg,
		items: make(map[string]*memoryItem),
		order: list.New(),
		stop:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go t.sweepLoop(cfg.SweepInterval)
	}
	return t
}

// Name implements the tier contract.
func (t *MemoryTier) Name() string { return "memory" }

// Get implements the tier contract. Expired entries are removed and reported
// as absent.
func (t *MemoryTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !time.Now().Before(item.expiresAt) {
		t.removeLocked(key)
		return nil, false, nil
	}
	return item.data, true, nil
}

// Set implements the tier contract.
func (t *MemoryTier) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}

	t.mu.Lock()
	if old, ok := t.items[key]; ok {
		t.totalBytes -= int64(len(old.data))
		t.order.Remove(old.slot)
	}
	item := &memoryItem{data: data, expiresAt: expires}
	item.slot = t.order.PushBack(key)
	t.items[key] = item
	t.totalBytes += int64(len(data))
	evicted := t.evictLocked()
	t.mu.Unlock()

	if t.cfg.OnEvict != nil {
		for _, k := range evicted {
			t.cfg.OnEvict(k)
		}
	}
	return nil
}

// Delete implements the tier contract.
func (t *MemoryTier) Delete(_ context.Context, keys ...string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if _, ok := t.items[key]; ok {
			t.removeLocked(key)
			removed++
		}
	}
	return removed, nil
}

// Keys implements the tier contract using glob-style matching.
func (t *MemoryTier) Keys(_ context.Context, pattern string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for key := range t.items {
		if pattern == "*" {
			out = append(out, key)
			continue
		}
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			out = append(out, key)
		}
	}
	return out, nil
}

// Len reports the current entry count.
func (t *MemoryTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Bytes reports the total stored payload size.
func (t *MemoryTier) Bytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalBytes
}

// Stop halts the sweeper. Safe to call more than once.
func (t *MemoryTier) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// evictLocked removes oldest-created entries until both caps are satisfied.
func (t *MemoryTier) evictLocked() []string {
	var evicted []string
	for t.overCapacityLocked() {
		victim, ok := t.oldestLocked()
		if !ok {
			break
		}
		t.removeLocked(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

func (t *MemoryTier) overCapacityLocked() bool {
	if t.cfg.MaxItems > 0 && len(t.items) > t.cfg.MaxItems {
		return true
	}
	if t.cfg.MaxBytes > 0 && t.totalBytes > t.cfg.MaxBytes {
		return true
	}
	return false
}

func (t *MemoryTier) oldestLocked() (string, bool) {
	front := t.order.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(string), true
}

func (t *MemoryTier) removeLocked(key string) {
	if item, ok := t.items[key]; ok {
		t.totalBytes -= int64(len(item.data))
		t.order.Remove(item.slot)
		delete(t.items, key)
	}
}

func (t *MemoryTier) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep removes every expired entry regardless of capacity pressure.
func (t *MemoryTier) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, item := range t.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			t.removeLocked(key)
		}
	}
}
