package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes events as Prometheus metrics: a counter per event type
// and service, plus a latency histogram fed by slow-query events.
type Collector struct {
	events    *prometheus.CounterVec
	slowQuery *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers its metrics with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache and loader events by type and service.",
		}, []string{"type", "service"}),
		slowQuery: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slow_query_duration_ms",
			Help:      "Execution time of queries flagged as slow, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"service"}),
	}
	for _, col := range []prometheus.Collector{c.events, c.slowQuery} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Emit implements Emitter.
func (c *Collector) Emit(ev Event) {
	c.events.WithLabelValues(string(ev.Type), ev.Service).Inc()
	if ev.Type == TypeSlowQuery {
		c.slowQuery.WithLabelValues(ev.Service).Observe(ev.Value)
	}
}
