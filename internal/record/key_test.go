package record

import "testing"

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase passthrough", "amount", "amount"},
		{"uppercase folds", "NET_AMT", "netamt"},
		{"underscores stripped", "net_amt_usd", "netamtusd"},
		{"spaces stripped", " net amt ", "netamt"},
		{"punctuation stripped", "net-amt.v2", "netamtv2"},
		{"digits kept", "amt2", "amt2"},
		{"empty", "", ""},
		{"only separators", "___", ""},
		{"fullwidth compat folds", "ＮＥＴ", "net"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeToken(tt.in); got != tt.want {
				t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEndpointNormalizedKey(t *testing.T) {
	a := Endpoint{System: "DWH", Table: "STG_CLAIMS", Column: "NET_AMT", Role: RoleTarget}
	b := Endpoint{System: "OTHER", Table: "stg claims", Column: "net_amt", Role: RoleSource}

	if a.NormalizedKey() != b.NormalizedKey() {
		t.Errorf("keys differ: %q vs %q", a.NormalizedKey(), b.NormalizedKey())
	}
	if got, want := a.NormalizedKey(), "stgclaims.netamt"; got != want {
		t.Errorf("NormalizedKey() = %q, want %q", got, want)
	}
	if got, want := a.NormalizedColumn(), "netamt"; got != want {
		t.Errorf("NormalizedColumn() = %q, want %q", got, want)
	}
}

func TestEndpointFullName(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		want string
	}{
		{"all parts", Endpoint{System: "SRC", Table: "CLAIMS", Column: "NET_AMT"}, "SRC.CLAIMS.NET_AMT"},
		{"no system", Endpoint{Table: "CLAIMS", Column: "NET_AMT"}, "CLAIMS.NET_AMT"},
		{"column only", Endpoint{Column: "NET_AMT"}, "NET_AMT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetMerge(t *testing.T) {
	var s Set
	if !s.Empty() {
		t.Fatal("zero set should be empty")
	}

	s.Merge(&Set{
		Mappings:  []Mapping{{ID: "m1", Name: "m_one"}},
		Endpoints: []Endpoint{{ID: "e1", Column: "A"}},
	})
	s.Merge(nil)
	s.Merge(&Set{Mappings: []Mapping{{ID: "m2", Name: "m_two"}}})

	if s.Empty() {
		t.Fatal("merged set should not be empty")
	}
	if len(s.Mappings) != 2 || len(s.Endpoints) != 1 {
		t.Errorf("unexpected counts: %d mappings, %d endpoints", len(s.Mappings), len(s.Endpoints))
	}
}
