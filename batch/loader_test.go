package batch_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/loadplane/go-entity-cache/batch"
	"github.com/loadplane/go-entity-cache/cache"
	"github.com/loadplane/go-entity-cache/pkg/testsupport"
)

func testConfig(mutate func(*batch.Config)) batch.Config {
	cfg := batch.DefaultConfig("record")
	cfg.Window = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func newLoader(t *testing.T, f *testsupport.Fetcher, mutate func(*batch.Config), opts ...batch.Option[string, testsupport.Record]) *batch.Loader[string, testsupport.Record] {
	t.Helper()
	l, err := batch.New(testConfig(mutate), f.Fetch, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func newCache(t *testing.T) cache.Service {
	t.Helper()
	svc, err := cache.NewService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func sampleRecords(t *testing.T) []testsupport.Record {
	t.Helper()
	var records []testsupport.Record
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("records.json"), &records)
	return records
}

func TestLoadManyOrderAndDedupe(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	l := newLoader(t, f, nil)

	got, err := l.LoadMany(context.Background(), []string{"2", "1", "2", "3", "4"})
	if err != nil {
		t.Fatalf("LoadMany failed: %v", err)
	}

	wantNames := []string{"two", "one", "two", "three", ""}
	for i, want := range wantNames {
		if want == "" {
			if got[i] != nil {
				t.Errorf("slot %d = %+v, want nil for absent key", i, got[i])
			}
			continue
		}
		if got[i] == nil || got[i].Name != want {
			t.Errorf("slot %d = %+v, want name %q", i, got[i], want)
		}
	}

	batches := f.Batches()
	if len(batches) != 1 {
		t.Fatalf("fetch ran %d times, want 1", len(batches))
	}
	if want := []string{"2", "1", "3", "4"}; !reflect.DeepEqual(batches[0], want) {
		t.Errorf("batch keys = %v, want %v", batches[0], want)
	}
}

func TestConcurrentLoadsCoalesce(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	l := newLoader(t, f, func(c *batch.Config) { c.Window = 30 * time.Millisecond })

	var wg sync.WaitGroup
	for _, key := range []string{"1", "2", "3", "1", "2"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, err := l.Load(context.Background(), key); err != nil {
				t.Errorf("Load(%s) failed: %v", key, err)
			}
		}(key)
	}
	wg.Wait()

	if f.Calls() != 1 {
		t.Errorf("fetch ran %d times, want 1", f.Calls())
	}
}

func TestMaxBatchSizeClosesWindow(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	l := newLoader(t, f, func(c *batch.Config) {
		c.MaxBatchSize = 2
		c.Window = time.Hour
	})

	// With the timer effectively disabled, only the size cap can close a
	// window: four keys must seal two full batches.
	if _, err := l.LoadMany(context.Background(), []string{"1", "2", "3", "4"}); err != nil {
		t.Fatalf("LoadMany failed: %v", err)
	}

	if f.Calls() != 2 {
		t.Errorf("fetch ran %d times, want 2", f.Calls())
	}
	for _, b := range f.Batches() {
		if len(b) > 2 {
			t.Errorf("batch of %d keys exceeds the configured maximum", len(b))
		}
	}
}

func TestLoadServesFromCache(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	svc := newCache(t)
	l := newLoader(t, f, nil, batch.WithCache[string, testsupport.Record](svc, nil))
	ctx := context.Background()

	first, err := l.Load(ctx, "1")
	if err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	// The cache write trails the thunk resolution; give it a moment.
	time.Sleep(50 * time.Millisecond)
	second, err := l.Load(ctx, "1")
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}

	if f.Calls() != 1 {
		t.Errorf("fetch ran %d times, want 1", f.Calls())
	}
	if first.Name != second.Name {
		t.Errorf("cache returned %+v, fetch returned %+v", second, first)
	}
}

func TestFetchFailureNotCached(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	svc := newCache(t)
	l := newLoader(t, f, nil, batch.WithCache[string, testsupport.Record](svc, nil))
	ctx := context.Background()

	f.FailNext(errors.New("db down"))
	_, err := l.Load(ctx, "1")
	var ferr *batch.BatchFetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v, want BatchFetchError", err)
	}
	if ferr.EntityType != "record" {
		t.Errorf("error entity type = %q", ferr.EntityType)
	}

	// The failure must not poison the cache: the retry fetches fresh.
	got, err := l.Load(ctx, "1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got == nil || got.Name != "one" {
		t.Errorf("retry returned %+v", got)
	}
	if f.Calls() != 2 {
		t.Errorf("fetch ran %d times, want 2", f.Calls())
	}
}

func TestFetchLengthMismatch(t *testing.T) {
	short := func(ctx context.Context, keys []string) ([]*testsupport.Record, error) {
		return []*testsupport.Record{}, nil
	}
	l, err := batch.New(testConfig(nil), short)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = l.Load(context.Background(), "1")
	var ferr *batch.BatchFetchError
	if !errors.As(err, &ferr) {
		t.Errorf("err = %v, want BatchFetchError for length mismatch", err)
	}
}

func TestClearForcesRefetch(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	svc := newCache(t)
	l := newLoader(t, f, nil, batch.WithCache[string, testsupport.Record](svc, nil))
	ctx := context.Background()

	if _, err := l.Load(ctx, "1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := l.Clear(ctx, "1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := l.Load(ctx, "1"); err != nil {
		t.Fatalf("Load after Clear failed: %v", err)
	}
	if f.Calls() != 2 {
		t.Errorf("fetch ran %d times, want 2", f.Calls())
	}
}

type obsRecorder struct {
	mu  sync.Mutex
	obs []batch.Observation
}

func (o *obsRecorder) ObserveFetch(obs batch.Observation) {
	o.mu.Lock()
	o.obs = append(o.obs, obs)
	o.mu.Unlock()
}

func (o *obsRecorder) all() []batch.Observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]batch.Observation(nil), o.obs...)
}

func TestObserverSeesFetchesAndHits(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	svc := newCache(t)
	rec := &obsRecorder{}
	l := newLoader(t, f, nil,
		batch.WithCache[string, testsupport.Record](svc, nil),
		batch.WithObserver[string, testsupport.Record](rec),
	)
	ctx := context.Background()

	if _, err := l.Load(ctx, "1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := l.Load(ctx, "1"); err != nil {
		t.Fatalf("cached Load failed: %v", err)
	}

	all := rec.all()
	if len(all) != 2 {
		t.Fatalf("observed %d events, want 2", len(all))
	}
	if !all[0].Batched || all[0].CacheHitRatio != 0 {
		t.Errorf("first observation = %+v, want a batched fetch", all[0])
	}
	if all[1].Batched || all[1].CacheHitRatio != 1 {
		t.Errorf("second observation = %+v, want a cache hit", all[1])
	}
}

func TestSourceOf(t *testing.T) {
	f := testsupport.NewFetcher(sampleRecords(t)...)
	l := newLoader(t, f, nil)
	src := batch.SourceOf(l)

	if src.EntityType() != "record" {
		t.Errorf("EntityType = %q", src.EntityType())
	}

	values, err := src.LoadKeys(context.Background(), []string{"1", "nope"})
	if err != nil {
		t.Fatalf("LoadKeys failed: %v", err)
	}
	if values[0] == nil {
		t.Error("expected a value for a known id")
	}
	// Missing entities must surface as untyped nils, not typed nil pointers.
	if values[1] != nil {
		t.Errorf("slot for unknown id = %#v, want nil", values[1])
	}
}
