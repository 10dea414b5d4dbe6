package optimizer

import (
	"time"

	"github.com/google/uuid"
)

// QueryMetricRecord is one observed query execution.
type QueryMetricRecord struct {
	ID            string        `json:"id"`
	EntityType    string        `json:"entity_type"`
	Operation     string        `json:"operation"`
	KeyCount      int           `json:"key_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	CacheHitRatio float64       `json:"cache_hit_ratio"`
	Batched       bool          `json:"batched"`
	Timestamp     time.Time     `json:"timestamp"`
}

func newRecord(entityType, operation string, keyCount int, elapsed time.Duration, hitRatio float64, batched bool) QueryMetricRecord {
	return QueryMetricRecord{
		ID:            uuid.NewString(),
		EntityType:    entityType,
		Operation:     operation,
		KeyCount:      keyCount,
		ExecutionTime: elapsed,
		CacheHitRatio: hitRatio,
		Batched:       batched,
		Timestamp:     time.Now(),
	}
}

// metricRing is a fixed-capacity ring buffer of metric records. Once full,
// new records overwrite the oldest.
type metricRing struct {
	records []QueryMetricRecord
	next    int
	full    bool
}

func newMetricRing(capacity int) *metricRing {
	return &metricRing{records: make([]QueryMetricRecord, capacity)}
}

func (r *metricRing) push(rec QueryMetricRecord) {
	r.records[r.next] = rec
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.full = true
	}
}

func (r *metricRing) len() int {
	if r.full {
		return len(r.records)
	}
	return r.next
}

// snapshot returns records oldest first.
func (r *metricRing) snapshot() []QueryMetricRecord {
	out := make([]QueryMetricRecord, 0, r.len())
	if r.full {
		out = append(out, r.records[r.next:]...)
	}
	out = append(out, r.records[:r.next]...)
	return out
}

func (r *metricRing) reset() {
	r.next = 0
	r.full = false
}

// Report summarizes recent query activity.
type Report struct {
	TotalQueries     int64
	AvgExecutionTime time.Duration
	BatchedRatio     float64
	CacheHitRatio    float64
	SlowQueries      []QueryMetricRecord
	Strategies       []StrategySnapshot
	Recommendations  []string
}
