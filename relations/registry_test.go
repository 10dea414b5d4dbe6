package relations

import "testing"

func validMapping() Mapping {
	return Mapping{
		OwnerType:   "user",
		Name:        "profile",
		TargetType:  "profile",
		Cardinality: One,
		ForeignKey:  "user_id",
		Strategy:    Batch,
		Cacheable:   true,
	}
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Mapping)
		wantErr bool
	}{
		{"valid", func(m *Mapping) {}, false},
		{"many cardinality", func(m *Mapping) { m.Cardinality = Many }, false},
		{"missing owner", func(m *Mapping) { m.OwnerType = "" }, true},
		{"missing name", func(m *Mapping) { m.Name = "" }, true},
		{"missing target", func(m *Mapping) { m.TargetType = "" }, true},
		{"bad cardinality", func(m *Mapping) { m.Cardinality = "some" }, true},
		{"bad strategy", func(m *Mapping) { m.Strategy = "sometimes" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMapping()
			tt.mutate(&m)
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(validMapping()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	second := validMapping()
	second.Name = "posts"
	second.TargetType = "post"
	second.Cardinality = Many
	if err := r.Register(second); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if got := r.Mappings("user"); len(got) != 2 {
		t.Errorf("Mappings returned %d entries, want 2", len(got))
	}
	if got := r.Mappings("post"); got != nil {
		t.Errorf("expected no mappings for unknown owner, got %v", got)
	}

	m, ok := r.Lookup("user", "posts")
	if !ok || m.TargetType != "post" {
		t.Errorf("Lookup = (%+v, %v)", m, ok)
	}
	if _, ok := r.Lookup("user", "nope"); ok {
		t.Error("expected lookup miss for unknown relation")
	}
}

func TestRegistryReplacesByName(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(validMapping()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	replacement := validMapping()
	replacement.Strategy = Lazy
	if err := r.Register(replacement); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if got := r.Mappings("user"); len(got) != 1 {
		t.Fatalf("Mappings returned %d entries, want 1", len(got))
	}
	m, _ := r.Lookup("user", "profile")
	if m.Strategy != Lazy {
		t.Errorf("strategy = %q, want the replacement", m.Strategy)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	bad := validMapping()
	bad.OwnerType = ""
	if err := r.Register(bad); err == nil {
		t.Error("expected invalid mapping to be rejected")
	}
	if got := r.Mappings("user"); got != nil {
		t.Errorf("invalid mapping was stored: %v", got)
	}
}
