package dedup

import (
	"github.com/hbollon/go-edlib"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
)

// Rejection reasons reported by the filter pass.
const (
	ReasonBarcode      = "distinct barcodes"
	ReasonBrand        = "brand mismatch"
	ReasonKeyword      = "conflicting keyword"
	ReasonExclusive    = "exclusive keyword"
	ReasonTokenOverlap = "low token overlap"
)

// conflictPairs are keyword pairs that mark two names as different products
// when one name carries the first word and the other carries the second.
var conflictPairs = [][2]string{
	{"men", "women"},
	{"mens", "womens"},
	{"day", "night"},
	{"liquid", "powder"},
	{"liquid", "bar"},
	{"matte", "glossy"},
	{"white", "black"},
	{"mini", "maxi"},
}

// exclusiveTokens mark a product variant so specific that its absence on the
// other side is itself a conflict.
var exclusiveTokens = []string{
	"refill",
	"travel",
	"sample",
	"decaf",
	"diet",
	"sensitive",
	"kids",
	"baby",
}

// nameRescueSimilarity is the Jaro-Winkler floor at which two full names
// override a failed token overlap check.
const nameRescueSimilarity = 0.92

// Filter is the cheap rejection pass that runs before any arbitration call.
type Filter struct {
	jaccardThreshold float64
}

// NewFilter creates a filter with the given token overlap threshold.
func NewFilter(jaccardThreshold float64) *Filter {
	return &Filter{jaccardThreshold: jaccardThreshold}
}

// Check inspects a pair and returns the rejection reason, if any. A pair
// that passes every check is eligible for arbitration, nothing more.
func (f *Filter) Check(a, b *catalogs.Product) (string, bool) {
	// Products holding different barcodes are different products; equal
	// barcodes would already share one canonical record.
	if a.PrimaryBarcode != "" && b.PrimaryBarcode != "" && a.PrimaryBarcode != b.PrimaryBarcode {
		return ReasonBarcode, true
	}

	brandA, brandB := normalize.Fold(a.Brand), normalize.Fold(b.Brand)
	if brandA != "" && brandB != "" && brandA != brandB {
		return ReasonBrand, true
	}

	attrsA, attrsB := Extract(a.Name), Extract(b.Name)
	if reason, conflict := attrsA.Conflict(attrsB); conflict {
		return reason, true
	}

	for _, pair := range conflictPairs {
		if hasEither(attrsA.Tokens, attrsB.Tokens, pair[0], pair[1]) {
			return ReasonKeyword, true
		}
	}

	for _, tok := range exclusiveTokens {
		_, inA := attrsA.Tokens[tok]
		_, inB := attrsB.Tokens[tok]
		if inA != inB {
			return ReasonExclusive, true
		}
	}

	if normalize.Jaccard(attrsA.Tokens, attrsB.Tokens) < f.jaccardThreshold {
		// Reworded names can share few tokens yet still describe one
		// product; a near-identical string keeps the pair eligible.
		nameA, nameB := normalize.Fold(a.Name), normalize.Fold(b.Name)
		if edlib.JaroWinklerSimilarity(nameA, nameB) < nameRescueSimilarity {
			return ReasonTokenOverlap, true
		}
	}

	return "", false
}

// hasEither reports whether one token set carries x while the other carries
// y, in either direction.
func hasEither(a, b map[string]struct{}, x, y string) bool {
	_, ax := a[x]
	_, ay := a[y]
	_, bx := b[x]
	_, by := b[y]
	return (ax && by && !ay && !bx) || (ay && bx && !ax && !by)
}
