package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loadplane/go-entity-cache/internal/tierinfra"
)

func TestFetcherAlignsResults(t *testing.T) {
	f := NewFetcher(
		Record{ID: "1", Name: "one"},
		Record{ID: "2", Name: "two"},
	)

	got, err := f.Fetch(context.Background(), []string{"2", "missing", "1"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got[0].Name != "two" || got[2].Name != "one" {
		t.Errorf("got %+v", got)
	}
	if got[1] != nil {
		t.Errorf("unknown id produced %+v, want nil", got[1])
	}

	if f.Calls() != 1 {
		t.Errorf("Calls = %d, want 1", f.Calls())
	}
	if b := f.Batches(); len(b) != 1 || len(b[0]) != 3 {
		t.Errorf("Batches = %v", b)
	}
}

func TestFetcherFailNext(t *testing.T) {
	f := NewFetcher(Record{ID: "1"})
	ctx := context.Background()

	f.FailNext(errors.New("boom"))
	if _, err := f.Fetch(ctx, []string{"1"}); err == nil {
		t.Fatal("expected injected failure")
	}
	// Failure is one-shot.
	if _, err := f.Fetch(ctx, []string{"1"}); err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
}

func TestFetcherLatencyHonorsContext(t *testing.T) {
	f := NewFetcher(Record{ID: "1"})
	f.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, []string{"1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Fetch ignored the context deadline")
	}
}

func TestFlakyTier(t *testing.T) {
	inner := tierinfra.NewMemoryTier(tierinfra.MemoryConfig{})
	defer inner.Stop()
	flaky := &FlakyTier{Inner: inner}
	ctx := context.Background()

	if err := flaky.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	flaky.Trip(nil)
	if _, _, err := flaky.Get(ctx, "k"); err == nil {
		t.Error("tripped tier must fail reads")
	}
	if err := flaky.Set(ctx, "k2", nil, 0); err == nil {
		t.Error("tripped tier must fail writes")
	}

	flaky.Restore()
	data, ok, err := flaky.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Errorf("restored Get = (%q, %v, %v)", data, ok, err)
	}
}
