package redistier

import "testing"

func TestNamespacing(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"no prefix", "", "user::1", "user::1"},
		{"with prefix", "app", "user::1", "app:user::1"},
		{"prefix with colon key", "cache", "a:b", "cache:a:b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := New(nil, tt.prefix)
			got := tier.namespaced(tt.key)
			if got != tt.want {
				t.Errorf("namespaced(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if back := tier.unnamespaced(got); back != tt.key {
				t.Errorf("unnamespaced(%q) = %q, want %q", got, back, tt.key)
			}
		})
	}
}

func TestName(t *testing.T) {
	if got := New(nil, "").Name(); got != "redis" {
		t.Errorf("Name = %q, want redis", got)
	}
}
