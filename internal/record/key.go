package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeToken folds a table or column token into its canonical lookup
// form: NFKC-normalized, lowercased, with whitespace, underscores, and all
// other non-alphanumeric runes removed. Total: always computable, the empty
// string normalizes to itself.
func NormalizeToken(s string) string {
	folded := norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizedKey returns the endpoint's global identity used for cross-mapping
// stitching: the normalized table and column portions joined with a dot.
func (e Endpoint) NormalizedKey() string {
	return NormalizeToken(e.Table) + "." + NormalizeToken(e.Column)
}

// NormalizedColumn returns just the column portion of the normalized key.
// Field-name queries anchor against this.
func (e Endpoint) NormalizedColumn() string {
	return NormalizeToken(e.Column)
}

// FullName renders the endpoint as SYSTEM.TABLE.COLUMN for display.
func (e Endpoint) FullName() string {
	parts := make([]string, 0, 3)
	if e.System != "" {
		parts = append(parts, e.System)
	}
	if e.Table != "" {
		parts = append(parts, e.Table)
	}
	parts = append(parts, e.Column)
	return strings.Join(parts, ".")
}
