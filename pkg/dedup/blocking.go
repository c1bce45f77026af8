package dedup

import (
	"sort"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
)

// pair is an unordered product pair, stored with the smaller ID first so one
// pair has exactly one key.
type pair struct {
	left  catalogs.ProductID
	right catalogs.ProductID
}

func pairOf(a, b catalogs.ProductID) pair {
	if b < a {
		a, b = b, a
	}
	return pair{left: a, right: b}
}

// candidatePairs blocks the catalog by shared informative tokens: only
// products sharing at least one token are ever compared. Tokens held by more
// than maxBucket products are too common to discriminate and are skipped.
func candidatePairs(products []catalogs.Product, maxBucket int) []pair {
	buckets := make(map[string][]catalogs.ProductID)
	for i := range products {
		for _, tok := range normalize.Tokens(products[i].Name) {
			buckets[tok] = append(buckets[tok], products[i].ID)
		}
	}

	seen := make(map[pair]struct{})
	for _, ids := range buckets {
		if len(ids) < 2 || len(ids) > maxBucket {
			continue
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if ids[i] == ids[j] {
					continue
				}
				seen[pairOf(ids[i], ids[j])] = struct{}{}
			}
		}
	}

	pairs := make([]pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].left != pairs[j].left {
			return pairs[i].left < pairs[j].left
		}
		return pairs[i].right < pairs[j].right
	})
	return pairs
}
