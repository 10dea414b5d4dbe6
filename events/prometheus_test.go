package events

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, "entitycache")
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.Emit(Event{Type: TypeHit, Service: "svc"})
	c.Emit(Event{Type: TypeHit, Service: "svc"})
	c.Emit(Event{Type: TypeSlowQuery, Service: "svc", Value: 250})

	hits := testutil.ToFloat64(c.events.WithLabelValues(string(TypeHit), "svc"))
	if hits != 2 {
		t.Errorf("expected 2 hit events, got %v", hits)
	}
	slow := testutil.ToFloat64(c.events.WithLabelValues(string(TypeSlowQuery), "svc"))
	if slow != 1 {
		t.Errorf("expected 1 slow query event, got %v", slow)
	}
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg, "entitycache"); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewCollector(reg, "entitycache"); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
