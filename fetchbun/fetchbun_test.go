package fetchbun

import "testing"

type row struct {
	ID   string
	Name string
}

func keyOf(r *row) string { return r.ID }

func TestAlignByKey(t *testing.T) {
	rows := []*row{
		{ID: "2", Name: "two"},
		{ID: "1", Name: "one"},
	}

	tests := []struct {
		name string
		keys []string
		want []string // names per slot, "" for nil
	}{
		{"reorders to requested order", []string{"1", "2"}, []string{"one", "two"}},
		{"nil slot for missing key", []string{"1", "404", "2"}, []string{"one", "", "two"}},
		{"duplicate keys share the row", []string{"2", "2"}, []string{"two", "two"}},
		{"empty keys", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AlignByKey(tt.keys, rows, keyOf)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d slots, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if want == "" {
					if got[i] != nil {
						t.Errorf("slot %d = %+v, want nil", i, got[i])
					}
					continue
				}
				if got[i] == nil || got[i].Name != want {
					t.Errorf("slot %d = %+v, want name %q", i, got[i], want)
				}
			}
		})
	}
}

func TestAlignByKeySkipsNilRows(t *testing.T) {
	rows := []*row{nil, {ID: "1", Name: "one"}}
	got := AlignByKey([]string{"1"}, rows, keyOf)
	if got[0] == nil || got[0].Name != "one" {
		t.Errorf("got %+v", got[0])
	}
}
