package tierinfra

import (
	"context"
	"testing"
	"time"
)

func newSturdy() *SturdyTier {
	return NewSturdyTier(100, 4, time.Minute, 10)
}

func TestSturdyTierRoundTrip(t *testing.T) {
	tier := newSturdy()
	ctx := context.Background()

	if err := tier.Set(ctx, "user::1", []byte("alice"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, ok, err := tier.Get(ctx, "user::1")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v), want hit", ok, err)
	}
	if string(data) != "alice" {
		t.Errorf("got %q, want %q", data, "alice")
	}
	if _, ok, _ := tier.Get(ctx, "user::2"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestSturdyTierDelete(t *testing.T) {
	tier := newSturdy()
	ctx := context.Background()

	if err := tier.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	n, err := tier.Delete(ctx, "a", "missing")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Delete removed %d, want 1", n)
	}
	if _, ok, _ := tier.Get(ctx, "a"); ok {
		t.Error("deleted entry still present")
	}
}

func TestSturdyTierKeys(t *testing.T) {
	tier := newSturdy()
	ctx := context.Background()

	for _, key := range []string{"user::1", "user::2", "post::1"} {
		if err := tier.Set(ctx, key, []byte("x"), 0); err != nil {
			t.Fatalf("Set(%s) failed: %v", key, err)
		}
	}

	all, err := tier.Keys(ctx, "*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Keys(*) = %d entries, want 3", len(all))
	}

	users, err := tier.Keys(ctx, "user::*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Keys(user::*) = %d entries, want 2", len(users))
	}
}
