package cache

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/loadplane/go-entity-cache/events"
	"github.com/loadplane/go-entity-cache/internal/tierinfra"
)

// Local engine names accepted by Config.LocalEngine.
const (
	// EngineFIFO is the canonical in-process tier: bounded by item count and
	// total bytes, evicting the entry with the oldest creation timestamp.
	EngineFIFO = "fifo"

	// EngineSturdy backs the local tier with a sturdyc client. Eviction and
	// per-entry TTL follow sturdyc's own sharded policy; the configured
	// DefaultTTL applies client-wide.
	EngineSturdy = "sturdyc"
)

// Config is the construction-time surface of the cache service. It is static
// once the service is built.
type Config struct {
	// ServiceName labels emitted events and metrics.
	ServiceName string

	// Codec selects the payload wire format: CodecJSON or CodecMsgpack.
	Codec string

	// DefaultTTL applies to entries written without an explicit TTL.
	DefaultTTL time.Duration

	// StalenessFraction of the TTL after which an entry is stale but still
	// valid. Must be in (0, 1].
	StalenessFraction float64

	// StaleWhileRevalidate serves stale-but-valid entries immediately while
	// refreshing them in the background.
	StaleWhileRevalidate bool

	// CompressionThreshold is the serialized size in bytes above which
	// payloads are gzip-compressed. Zero disables compression.
	CompressionThreshold int

	// MaxItems bounds the local tier entry count.
	MaxItems int

	// MaxBytes bounds the local tier total payload size.
	MaxBytes int64

	// SweepInterval is how often the local tier removes expired entries,
	// independent of access patterns.
	SweepInterval time.Duration

	// LocalEngine selects the in-process tier implementation.
	LocalEngine string

	// NumShards and EvictionPercentage configure the sturdyc engine and are
	// ignored by the FIFO engine.
	NumShards          int
	EvictionPercentage int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:          "entity-cache",
		Codec:                CodecJSON,
		DefaultTTL:           5 * time.Minute,
		StalenessFraction:    0.8,
		StaleWhileRevalidate: true,
		CompressionThreshold: 4 << 10,
		MaxItems:             10000,
		MaxBytes:             64 << 20,
		SweepInterval:        30 * time.Second,
		LocalEngine:          EngineFIFO,
		NumShards:            256,
		EvictionPercentage:   10,
	}
}

// Validate checks whether the configuration values are usable. An invalid
// configuration must prevent the service from starting.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Codec, validation.Required, validation.In(CodecJSON, CodecMsgpack)),
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.StalenessFraction, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.CompressionThreshold, validation.Min(0)),
		validation.Field(&c.MaxItems, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.SweepInterval, validation.Required),
		validation.Field(&c.LocalEngine, validation.Required, validation.In(EngineFIFO, EngineSturdy)),
	)
}

// ServiceOption customizes collaborators of a Service at construction time.
type ServiceOption func(*multiTier)

// WithLogger injects the logger used for fail-open tier errors and refresh
// failures.
func WithLogger(logger logrus.FieldLogger) ServiceOption {
	return func(s *multiTier) { s.logger = logger }
}

// WithEmitter injects the observability sink receiving hit/miss/eviction
// events.
func WithEmitter(emitter events.Emitter) ServiceOption {
	return func(s *multiTier) { s.emitter = emitter }
}

// WithTier appends a slower tier behind the local one. Tiers are consulted
// in the order they were added.
func WithTier(t Tier) ServiceOption {
	return func(s *multiTier) { s.tiers = append(s.tiers, t) }
}

// NewService constructs the default multi-tier cache service. The local tier
// is built from cfg; remote tiers attach via WithTier.
func NewService(cfg Config, opts ...ServiceOption) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache: invalid config: %w", err)
	}

	codec, ok := codecByName(cfg.Codec)
	if !ok {
		return nil, fmt.Errorf("cache: unknown codec %q", cfg.Codec)
	}

	s := &multiTier{
		cfg:     cfg,
		codec:   codec,
		logger:  logrus.StandardLogger(),
		emitter: events.Nop{},
	}

	switch cfg.LocalEngine {
	case EngineSturdy:
		s.tiers = append(s.tiers, tierinfra.NewSturdyTier(cfg.MaxItems, cfg.NumShards, cfg.DefaultTTL, cfg.EvictionPercentage))
	default:
		local := tierinfra.NewMemoryTier(tierinfra.MemoryConfig{
			MaxItems:      cfg.MaxItems,
			MaxBytes:      cfg.MaxBytes,
			SweepInterval: cfg.SweepInterval,
			OnEvict: func(key string) {
				s.emit(events.TypeEviction, key, 0)
			},
		})
		s.tiers = append(s.tiers, local)
	}

	for _, opt := range opts {
		opt(s)
	}
	s.initCounters()
	return s, nil
}
