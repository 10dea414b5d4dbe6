// Package redistier provides a Redis-backed remote cache tier. The tier is
// treated as independently unavailable: connection or command failures are
// surfaced to the cache service, which degrades to a miss or a skipped write.
package redistier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds the connection settings for a Redis tier.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key written by this tier. Optional.
	Prefix string

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Tier implements the cache tier contract over a Redis client.
type Tier struct {
	r      redis.Cmdable
	prefix string
}

// New wraps an existing Redis client. Use NewFromConfig to also establish
// the connection.
func New(r redis.Cmdable, prefix string) *Tier {
	return &Tier{r: r, prefix: prefix}
}

// NewFromConfig dials Redis and verifies the connection with a ping.
func NewFromConfig(cfg Config) (*Tier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redistier: connect: %w", err)
	}
	return New(client, cfg.Prefix), nil
}

// Name implements the tier contract.
func (t *Tier) Name() string { return "redis" }

func (t *Tier) namespaced(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

func (t *Tier) unnamespaced(key string) string {
	if t.prefix == "" {
		return key
	}
	return key[len(t.prefix)+1:]
}

// Get implements the tier contract; redis.Nil maps to a plain miss.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := t.r.Get(ctx, t.namespaced(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set implements the tier contract using SET with expiry.
func (t *Tier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return t.r.Set(ctx, t.namespaced(key), data, ttl).Err()
}

// Delete implements the tier contract.
func (t *Tier) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = t.namespaced(key)
	}
	n, err := t.r.Del(ctx, namespaced...).Result()
	return int(n), err
}

// Keys implements the tier contract. Redis's native glob matching covers
// the pattern syntax used for invalidation.
func (t *Tier) Keys(ctx context.Context, pattern string) ([]string, error) {
	matches, err := t.r.Keys(ctx, t.namespaced(pattern)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = t.unnamespaced(m)
	}
	return out, nil
}
