package batch

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config is the construction-time surface of a Loader.
type Config struct {
	// EntityType names the entities this loader fetches. It prefixes cache
	// keys and labels metrics.
	EntityType string

	// MaxBatchSize closes a window early once it holds this many keys;
	// oversized key lists spill into fresh windows.
	MaxBatchSize int

	// Window is how long the first load in a window waits for company
	// before the batch dispatches.
	Window time.Duration

	// TTL applies to cached fetch results. Zero falls back to the cache
	// service default.
	TTL time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults for the
// given entity type.
func DefaultConfig(entityType string) Config {
	return Config{
		EntityType:   entityType,
		MaxBatchSize: 100,
		Window:       2 * time.Millisecond,
	}
}

// Validate checks whether the configuration values are usable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.EntityType, validation.Required),
		validation.Field(&c.MaxBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Window, validation.Required, validation.Min(time.Duration(0))),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// BatchFetchError reports that a fetch failed for an entire pending window.
// Every caller waiting on that window receives the same error; nothing is
// cached, so the next load retries.
type BatchFetchError struct {
	EntityType string
	Err        error
}

// Error implements the error interface.
func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("batch: fetch for %q failed: %v", e.EntityType, e.Err)
}

// Unwrap exposes the underlying fetch error for errors.Is/As.
func (e *BatchFetchError) Unwrap() error { return e.Err }
