package optimizer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// pruneAbove bounds the fingerprint table: expired windows are dropped once
// the table grows past this size.
const pruneAbove = 1024

// fingerprint normalizes a query shape to a stable 64-bit hash. Relation
// order does not affect the result.
func fingerprint(entityType, operation string, relationNames []string) uint64 {
	sorted := make([]string, len(relationNames))
	copy(sorted, relationNames)
	sort.Strings(sorted)

	d := xxhash.New()
	_, _ = d.WriteString(entityType)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(operation)
	for _, name := range sorted {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(name)
	}
	return d.Sum64()
}

type fingerprintWindow struct {
	start   time.Time
	count   int
	alerted bool
}

// detector counts query-shape fingerprints inside sliding windows and fires
// at most one alert per fingerprint per window.
type detector struct {
	threshold int
	window    time.Duration

	mu      sync.Mutex
	windows map[uint64]*fingerprintWindow
}

func newDetector(threshold int, window time.Duration) *detector {
	return &detector{
		threshold: threshold,
		window:    window,
		windows:   make(map[uint64]*fingerprintWindow),
	}
}

// observe records one occurrence of fp and reports whether this occurrence
// pushed the count past the threshold for the current window.
func (d *detector) observe(fp uint64) (alert bool, count int) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.windows[fp]
	if w == nil || now.Sub(w.start) > d.window {
		w = &fingerprintWindow{start: now}
		d.windows[fp] = w
	}
	w.count++
	if w.count > d.threshold && !w.alerted {
		w.alerted = true
		alert = true
	}
	count = w.count

	if len(d.windows) > pruneAbove {
		d.pruneLocked(now)
	}
	return alert, count
}

func (d *detector) pruneLocked(now time.Time) {
	for fp, w := range d.windows {
		if now.Sub(w.start) > d.window {
			delete(d.windows, fp)
		}
	}
}

// reset clears all fingerprint windows.
func (d *detector) reset() {
	d.mu.Lock()
	d.windows = make(map[uint64]*fingerprintWindow)
	d.mu.Unlock()
}

// describeShape renders a fingerprintable shape for log and alert output.
func describeShape(entityType, operation string, relationNames []string) string {
	if len(relationNames) == 0 {
		return entityType + "." + operation
	}
	sorted := make([]string, len(relationNames))
	copy(sorted, relationNames)
	sort.Strings(sorted)
	return entityType + "." + operation + "[" + strings.Join(sorted, ",") + "]"
}
