// Package match implements the tiered resolution cascade that assigns
// retailer listings to canonical products. Tiers run strictly in priority
// order and the first acceptance wins; cross-tier score comparison never
// happens. A listing no tier accepts yields its best sub-threshold
// candidates for the manual review queue.
package match

// Method identifies the cascade tier (or manual action) that produced a
// match. Methods are ordered: a lower rank is a more trusted tier.
type Method string

const (
	// MethodBarcode is a normalized barcode equality match.
	MethodBarcode Method = "barcode"
	// MethodExact is a case-insensitive exact name+brand match.
	MethodExact Method = "exact_name_brand"
	// MethodFuzzy is a weighted string-similarity match.
	MethodFuzzy Method = "fuzzy"
	// MethodEmbedding is a vector nearest-neighbor match.
	MethodEmbedding Method = "embedding"
	// MethodCategory is a category equality plus partial name overlap match.
	MethodCategory Method = "category_partial"
	// MethodManual is a human resolution from the review queue.
	MethodManual Method = "manual"
)

// methodRanks orders tiers by priority. Manual sits outside the cascade.
var methodRanks = map[Method]int{
	MethodBarcode:   1,
	MethodExact:     2,
	MethodFuzzy:     3,
	MethodEmbedding: 4,
	MethodCategory:  5,
	MethodManual:    6,
}

// String returns the string representation of a method.
func (m Method) String() string {
	return string(m)
}

// Rank returns the tier priority, lowest first. Unknown methods rank last.
func (m Method) Rank() int {
	if r, ok := methodRanks[m]; ok {
		return r
	}
	return len(methodRanks) + 1
}

// Valid reports whether the method is one the engine can produce.
func (m Method) Valid() bool {
	_, ok := methodRanks[m]
	return ok
}

// ManualConfidence is the fixed confidence assigned to human resolutions.
const ManualConfidence = 0.99
