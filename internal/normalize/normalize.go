// Package normalize provides text canonicalization for product names and
// brands. All similarity tiers and attribute extraction operate on the same
// folded form so that two spellings of one product compare equal.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopWords are filler tokens that carry no product identity.
var stopWords = map[string]struct{}{
	"the":  {},
	"a":    {},
	"an":   {},
	"and":  {},
	"or":   {},
	"of":   {},
	"for":  {},
	"with": {},
	"new":  {},
	"pack": {},
	"free": {},
	"plus": {},
}

// unitWords are measurement tokens stripped from token sets. Sizes are
// compared through attribute extraction, not token overlap.
var unitWords = map[string]struct{}{
	"ml":    {},
	"l":     {},
	"g":     {},
	"gr":    {},
	"kg":    {},
	"mg":    {},
	"oz":    {},
	"pcs":   {},
	"units": {},
	"caps":  {},
	"tabs":  {},
}

// Lower applies NFKC normalization and lowercasing while preserving
// punctuation. Attribute extraction runs on this form because patterns
// such as "3*50" or "50%" depend on the symbols.
func Lower(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// Fold canonicalizes a name for comparison: NFKC, lowercase, punctuation
// folded to spaces, whitespace collapsed.
func Fold(s string) string {
	s = Lower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Key builds the exact-match key for a name and brand pair.
func Key(name, brand string) string {
	return Fold(name) + "|" + Fold(brand)
}

// Tokens splits a folded name into identity-bearing tokens, dropping stop
// words, unit words, and single characters.
func Tokens(s string) []string {
	fields := strings.Fields(Fold(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		if _, ok := unitWords[f]; ok {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TokenSet returns Tokens as a set for overlap computations.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes the Jaccard similarity of two token sets.
// Two empty sets are treated as disjoint, not identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
