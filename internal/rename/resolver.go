// Package rename decides whether two physical endpoints that are not
// identical represent a renamed continuation of the same field. The resolver
// is pure and stateless: it looks only at the two endpoints' names, never at
// the graph, and produces a confidence in [0,1].
package rename

import (
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

// Rule identifies which matching rule produced a result. Rules form a fixed
// priority: a higher-priority rule always wins even when a weaker rule would
// score higher, so every confidence stays explainable.
type Rule string

const (
	// RuleExactKey fires when the full normalized keys are equal. The
	// traversal engine treats this as a physical stitch, not a rename.
	RuleExactKey Rule = "exact-key"
	// RuleExactColumn fires when only the column portions are equal.
	RuleExactColumn Rule = "exact-column"
	// RuleToken fires when the column names are equal after stripping
	// numeric suffixes and expanding common ETL abbreviations.
	RuleToken Rule = "token"
	// RuleSimilarity fires when edit-distance similarity clears the
	// configured threshold.
	RuleSimilarity Rule = "similarity"
)

// Confidence assigned by each fixed-score rule.
const (
	confidenceExactKey    = 1.0
	confidenceExactColumn = 0.9
	confidenceToken       = 0.75
)

// DefaultThreshold is the minimum similarity accepted by RuleSimilarity.
const DefaultThreshold = 0.6

// Match is a positive resolver result.
type Match struct {
	Confidence float64
	Rule       Rule
}

// Resolver applies the priority-ordered rename rules.
type Resolver struct {
	threshold float64
}

// New returns a resolver accepting similarity scores at or above threshold.
// A non-positive threshold falls back to DefaultThreshold.
func New(threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{threshold: threshold}
}

// Threshold returns the configured similarity cutoff.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Resolve compares two endpoints. The second return value is false when no
// rule accepts the pair; that is a normal negative result, not an error.
func (r *Resolver) Resolve(a, b record.Endpoint) (Match, bool) {
	if a.NormalizedKey() == b.NormalizedKey() {
		return Match{Confidence: confidenceExactKey, Rule: RuleExactKey}, true
	}

	colA := a.NormalizedColumn()
	colB := b.NormalizedColumn()
	if colA == "" || colB == "" {
		return Match{}, false
	}
	if colA == colB {
		return Match{Confidence: confidenceExactColumn, Rule: RuleExactColumn}, true
	}

	if canonicalColumn(a.Column) == canonicalColumn(b.Column) {
		return Match{Confidence: confidenceToken, Rule: RuleToken}, true
	}

	if score := Similarity(colA, colB); score >= r.threshold {
		return Match{Confidence: score, Rule: RuleSimilarity}, true
	}

	return Match{}, false
}

// synonyms maps common ETL column abbreviations to their expansion. Both
// directions normalize to the expanded form.
var synonyms = map[string]string{
	"amt":  "amount",
	"qty":  "quantity",
	"nbr":  "number",
	"num":  "number",
	"dt":   "date",
	"cd":   "code",
	"desc": "description",
	"pct":  "percent",
	"ord":  "order",
}

var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// canonicalColumn reduces a raw column name to its token-normalized form:
// split on underscores and case boundaries, drop trailing numeric suffixes,
// expand abbreviations, and rejoin sorted so token order never matters.
func canonicalColumn(name string) string {
	tokens := splitTokens(name)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = trailingDigits.ReplaceAllString(tok, "")
		if tok == "" {
			continue
		}
		if full, ok := synonyms[tok]; ok {
			tok = full
		}
		out = append(out, tok)
	}
	sort.Strings(out)
	return strings.Join(out, "_")
}

// splitTokens lowercases and splits a column name into word tokens on
// underscores and other non-alphanumeric separators.
func splitTokens(name string) []string {
	lower := strings.ToLower(name)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// Similarity computes a Levenshtein-based similarity in [0,1]: identical
// strings score 1, completely disjoint strings score 0. Monotonic in edit
// distance, which is all the rename rules require of it.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a rolling single-row table.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := prev[0]
		prev[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			next := min(prev[j]+1, prev[j-1]+1, cur+cost)
			cur = prev[j]
			prev[j] = next
		}
	}
	return prev[len(b)]
}
