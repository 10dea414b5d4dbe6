package optimizer

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config controls coordinator thresholds and history sizing.
type Config struct {
	// ServiceName labels emitted events.
	ServiceName string

	// SlowQueryThreshold marks queries slower than this as slow.
	SlowQueryThreshold time.Duration

	// NPlusOneThreshold is the count of same-shape queries a detection
	// window tolerates; the N+1 alert fires once the count exceeds it.
	NPlusOneThreshold int

	// DetectionWindow bounds the sliding window used for fingerprint counts.
	DetectionWindow time.Duration

	// HistorySize caps the metric record ring buffer.
	HistorySize int

	// MaxSlowQueries caps the retained slow query list.
	MaxSlowQueries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "optimizer",
		SlowQueryThreshold: 100 * time.Millisecond,
		NPlusOneThreshold:  10,
		DetectionWindow:    time.Minute,
		HistorySize:        1000,
		MaxSlowQueries:     50,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.SlowQueryThreshold, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.NPlusOneThreshold, validation.Required, validation.Min(2)),
		validation.Field(&c.DetectionWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.HistorySize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxSlowQueries, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("invalid optimizer config: %w", err)
	}
	return nil
}
