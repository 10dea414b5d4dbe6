package batch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"ttl is optional", func(c *Config) { c.TTL = time.Minute }, false},
		{"missing entity type", func(c *Config) { c.EntityType = "" }, true},
		{"zero batch size", func(c *Config) { c.MaxBatchSize = 0 }, true},
		{"zero window", func(c *Config) { c.Window = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("record")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	fetch := func(ctx context.Context, keys []string) ([]*struct{}, error) { return nil, nil }

	if _, err := New(DefaultConfig(""), fetch); err == nil {
		t.Error("expected invalid config to be rejected")
	}
	if _, err := New[string, struct{}](DefaultConfig("record"), nil); err == nil {
		t.Error("expected nil fetch function to be rejected")
	}
}

func TestBatchFetchErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &BatchFetchError{EntityType: "record", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if err.Error() == "" {
		t.Error("expected a message")
	}
}
