package rename

import (
	"math"
	"testing"

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

func ep(table, column string) record.Endpoint {
	return record.Endpoint{System: "DWH", Table: table, Column: column}
}

func TestResolveRulePriority(t *testing.T) {
	r := New(0)

	tests := []struct {
		name     string
		a, b     record.Endpoint
		wantRule Rule
		wantConf float64
		wantOK   bool
	}{
		{
			name: "identical key is exact-key",
			a:    ep("STG_CLAIMS", "NET_AMT"), b: ep("stg_claims", "net_amt"),
			wantRule: RuleExactKey, wantConf: 1.0, wantOK: true,
		},
		{
			name: "same column different table is exact-column",
			a:    ep("STG_CLAIMS", "NET_AMT"), b: ep("FACT", "NET_AMT"),
			wantRule: RuleExactColumn, wantConf: 0.9, wantOK: true,
		},
		{
			name: "abbreviation expansion is token",
			a:    ep("STG_CLAIMS", "NET_AMT"), b: ep("FACT", "NET_AMOUNT"),
			wantRule: RuleToken, wantConf: 0.75, wantOK: true,
		},
		{
			name: "token order does not matter",
			a:    ep("A", "AMT_NET"), b: ep("B", "NET_AMOUNT"),
			wantRule: RuleToken, wantConf: 0.75, wantOK: true,
		},
		{
			name: "numeric suffix stripped before token match",
			a:    ep("A", "NET_AMT_2"), b: ep("B", "NET_AMOUNT"),
			wantRule: RuleToken, wantConf: 0.75, wantOK: true,
		},
		{
			name: "close spelling falls to similarity",
			a:    ep("A", "CUSTOMER_NAME"), b: ep("B", "CUSTOMER_NAMES"),
			wantRule: RuleSimilarity, wantOK: true,
		},
		{
			name: "unrelated names reject",
			a:    ep("A", "NET_AMT"), b: ep("B", "POSTAL_CODE"),
			wantOK: false,
		},
		{
			name: "empty column rejects",
			a:    ep("A", ""), b: ep("B", "NET_AMT"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Resolve(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.Rule != tt.wantRule {
				t.Errorf("rule = %s, want %s", m.Rule, tt.wantRule)
			}
			if tt.wantConf != 0 && m.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", m.Confidence, tt.wantConf)
			}
			if m.Rule == RuleSimilarity && m.Confidence < r.Threshold() {
				t.Errorf("similarity confidence %v below threshold %v", m.Confidence, r.Threshold())
			}
		})
	}
}

// A stronger rule must win even when a weaker rule would also match with a
// higher numeric score. NET_AMT vs NET_AMOUNT has similarity above 0.6 but
// must still report the token rule's fixed 0.75.
func TestResolveHigherPriorityWins(t *testing.T) {
	r := New(0)

	m, ok := r.Resolve(ep("STG", "NET_AMT"), ep("FACT", "NET_AMOUNT"))
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Rule != RuleToken {
		t.Errorf("rule = %s, want %s", m.Rule, RuleToken)
	}
	if m.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", m.Confidence)
	}
}

func TestResolveIsSymmetricForFixedRules(t *testing.T) {
	r := New(0)
	a, b := ep("STG", "NET_AMT"), ep("FACT", "NET_AMOUNT")

	m1, ok1 := r.Resolve(a, b)
	m2, ok2 := r.Resolve(b, a)
	if !ok1 || !ok2 {
		t.Fatal("expected matches both ways")
	}
	if m1 != m2 {
		t.Errorf("asymmetric result: %+v vs %+v", m1, m2)
	}
}

func TestResolveThreshold(t *testing.T) {
	strict := New(0.95)
	if _, ok := strict.Resolve(ep("A", "CUSTOMER_NAME"), ep("B", "CUSTOMER_NMS")); ok {
		t.Error("strict threshold should reject a loose similarity match")
	}

	if got := New(-1).Threshold(); got != DefaultThreshold {
		t.Errorf("negative threshold should fall back to default, got %v", got)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "abd", 1 - 1.0/3},
		{"abc", "", 0},
		{"kitten", "sitting", 1 - 3.0/7},
	}
	for _, tt := range tests {
		// Ratios like 1-1/3 are not exactly representable; compare within
		// a tolerance rather than bit-for-bit.
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
