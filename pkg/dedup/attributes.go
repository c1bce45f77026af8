// Package dedup finds and merges duplicate canonical products. Cheap
// attribute filters reject incompatible pairs first; only pairs that survive
// every filter reach the arbitration model, and only a definitive yes
// verdict ever merges anything.
package dedup

import (
	"regexp"
	"strconv"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
)

var (
	amountRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ml|l|kg|mg|gr|g|oz)\b`)
	spfRe       = regexp.MustCompile(`spf\s*(\d+)`)
	multipackRe = regexp.MustCompile(`(\d+)\s*[x*×]\s*(\d+)`)
	countRe     = regexp.MustCompile(`(\d+)\s*(?:pcs|pieces|units?|caps(?:ules)?|tab(?:let)?s|wipes|pads|sachets)\b`)
	variantRe   = regexp.MustCompile(`(?:no\.?\s*|#\s*)(\d+)\b`)
)

// Attributes are the size and variant facts extracted from a product name.
// A zero value means the attribute is absent, which never conflicts.
type Attributes struct {
	Volume    float64 // normalized to ml
	Weight    float64 // normalized to g
	Ounces    float64
	SPF       int
	PackCount int
	PackSize  int
	Count     int
	Variant   string
	Tokens    map[string]struct{}
}

// Extract parses attributes from a raw product name. Extraction runs on the
// lowercased form rather than the folded form because the patterns depend on
// punctuation like "3*50" and "no. 5".
func Extract(name string) Attributes {
	lower := normalize.Lower(name)
	attrs := Attributes{Tokens: normalize.TokenSet(name)}

	if m := amountRe.FindStringSubmatch(lower); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		switch m[2] {
		case "ml":
			attrs.Volume = value
		case "l":
			attrs.Volume = value * 1000
		case "g", "gr":
			attrs.Weight = value
		case "kg":
			attrs.Weight = value * 1000
		case "mg":
			attrs.Weight = value / 1000
		case "oz":
			attrs.Ounces = value
		}
	}

	if m := spfRe.FindStringSubmatch(lower); m != nil {
		attrs.SPF, _ = strconv.Atoi(m[1])
	}

	if m := multipackRe.FindStringSubmatch(lower); m != nil {
		attrs.PackCount, _ = strconv.Atoi(m[1])
		attrs.PackSize, _ = strconv.Atoi(m[2])
	}

	if m := countRe.FindStringSubmatch(lower); m != nil {
		attrs.Count, _ = strconv.Atoi(m[1])
	}

	if m := variantRe.FindStringSubmatch(lower); m != nil {
		attrs.Variant = m[1]
	}

	return attrs
}

// Conflict reports the first attribute where both products state a value and
// the values disagree. Absent attributes never conflict.
func (a Attributes) Conflict(b Attributes) (string, bool) {
	switch {
	case differs(a.Volume, b.Volume):
		return "volume", true
	case differs(a.Weight, b.Weight):
		return "weight", true
	case differs(a.Ounces, b.Ounces):
		return "ounces", true
	case a.SPF != 0 && b.SPF != 0 && a.SPF != b.SPF:
		return "spf", true
	case a.PackCount != 0 && b.PackCount != 0 && a.PackCount != b.PackCount:
		return "pack count", true
	case a.PackSize != 0 && b.PackSize != 0 && a.PackSize != b.PackSize:
		return "pack size", true
	case a.Count != 0 && b.Count != 0 && a.Count != b.Count:
		return "count", true
	case a.Variant != "" && b.Variant != "" && a.Variant != b.Variant:
		return "variant", true
	}
	return "", false
}

func differs(x, y float64) bool {
	if x == 0 || y == 0 {
		return false
	}
	diff := x - y
	if diff < 0 {
		diff = -diff
	}
	return diff > 1e-9
}
