package cache

import (
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
		{"sturdyc engine is valid", func(c *Config) { c.LocalEngine = EngineSturdy }, false},
		{"msgpack codec is valid", func(c *Config) { c.Codec = CodecMsgpack }, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"unknown codec", func(c *Config) { c.Codec = "protobuf" }, true},
		{"zero ttl", func(c *Config) { c.DefaultTTL = 0 }, true},
		{"staleness fraction above one", func(c *Config) { c.StalenessFraction = 1.5 }, true},
		{"negative staleness fraction", func(c *Config) { c.StalenessFraction = -0.5 }, true},
		{"zero max items", func(c *Config) { c.MaxItems = 0 }, true},
		{"negative compression threshold", func(c *Config) { c.CompressionThreshold = -1 }, true},
		{"unknown engine", func(c *Config) { c.LocalEngine = "lru" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = 0
	if _, err := NewService(cfg); err == nil {
		t.Error("expected construction to fail on invalid config")
	}

	cfg = DefaultConfig()
	cfg.DefaultTTL = time.Minute
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed on valid config: %v", err)
	}
	svc.Stop()
}
