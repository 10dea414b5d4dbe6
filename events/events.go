// Package events models cache and loader observability as an explicit
// observer interface instead of an ambient event bus, so that emission
// ordering is deterministic and testable.
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Type identifies the kind of observability event being emitted.
type Type string

const (
	// TypeHit is emitted when a cache read is served from a tier.
	TypeHit Type = "cache_hit"

	// TypeMiss is emitted when no tier holds a usable entry for a key.
	TypeMiss Type = "cache_miss"

	// TypeEviction is emitted when an entry is removed under capacity pressure.
	TypeEviction Type = "cache_eviction"

	// TypeStaleServe is emitted when a stale-but-valid entry is returned
	// while a background refresh runs.
	TypeStaleServe Type = "cache_stale_serve"

	// TypeSlowQuery is emitted when a fetch exceeds the slow-query threshold.
	TypeSlowQuery Type = "slow_query"

	// TypeNPlusOne is emitted once per window when a query-shape fingerprint
	// crosses the detection threshold.
	TypeNPlusOne Type = "n_plus_one_pattern"
)

// Event is the structured payload delivered to every Emitter.
// Key carries a cache key or a query fingerprint depending on Type; Value is
// the numeric observation attached to the event (duration in milliseconds for
// slow queries, occurrence count for N+1 alerts, and so on).
type Event struct {
	Type      Type      `json:"type"`
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// Emitter receives events. Implementations must not block: emission happens
// on hot read paths.
type Emitter interface {
	Emit(Event)
}

// Nop discards every event. It keeps call sites free of nil checks.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// LogEmitter writes events through a structured logger at debug level, with
// slow queries and N+1 alerts promoted to warning.
type LogEmitter struct {
	Logger logrus.FieldLogger
}

// NewLogEmitter returns a LogEmitter bound to the given logger. A nil logger
// falls back to the process-wide standard logger.
func NewLogEmitter(logger logrus.FieldLogger) *LogEmitter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogEmitter{Logger: logger}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(ev Event) {
	entry := l.Logger.WithFields(logrus.Fields{
		"event":   string(ev.Type),
		"key":     ev.Key,
		"value":   ev.Value,
		"service": ev.Service,
	})
	switch ev.Type {
	case TypeSlowQuery, TypeNPlusOne:
		entry.Warn("query pattern event")
	default:
		entry.Debug("cache event")
	}
}

// Recorder captures events in memory for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Emitter.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns the recorded events matching t, in emission order.
func (r *Recorder) ByType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
