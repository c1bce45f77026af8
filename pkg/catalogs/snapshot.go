package catalogs

import (
	"sort"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
)

// Snapshot is an immutable read-only view of a catalog, indexed for the
// match cascade. Batch workers share one snapshot, so tier lookups never
// contend with catalog writes.
type Snapshot struct {
	order      []ProductID
	products   map[ProductID]Product
	byBarcode  map[string]ProductID
	byKey      map[string]ProductID
	byBrand    map[string][]ProductID
	byCategory map[string][]ProductID
}

// NewSnapshot builds a snapshot from the catalog's current contents.
func NewSnapshot(r Reader) *Snapshot {
	list := r.Products().List()

	s := &Snapshot{
		order:      make([]ProductID, 0, len(list)),
		products:   make(map[ProductID]Product, len(list)),
		byBarcode:  make(map[string]ProductID, len(list)),
		byKey:      make(map[string]ProductID, len(list)),
		byBrand:    make(map[string][]ProductID),
		byCategory: make(map[string][]ProductID),
	}

	for _, p := range list {
		clone := p.Clone()
		s.order = append(s.order, clone.ID)
		s.products[clone.ID] = clone

		for _, code := range clone.Barcodes() {
			s.byBarcode[code] = clone.ID
		}

		// First holder wins on key collisions; order is sorted by ID so
		// the outcome is deterministic across runs.
		key := clone.MatchKey()
		if _, ok := s.byKey[key]; !ok {
			s.byKey[key] = clone.ID
		}

		if brand := normalize.Fold(clone.Brand); brand != "" {
			s.byBrand[brand] = append(s.byBrand[brand], clone.ID)
		}
		if cat := normalize.Fold(clone.Category); cat != "" {
			s.byCategory[cat] = append(s.byCategory[cat], clone.ID)
		}
	}

	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return s
}

// Len returns the number of products in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Products returns all products in deterministic ID order.
func (s *Snapshot) Products() []Product {
	out := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.products[id])
	}
	return out
}

// Product returns a product by id.
func (s *Snapshot) Product(id ProductID) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// ByBarcode returns the product holding a normalized barcode.
func (s *Snapshot) ByBarcode(code string) (Product, bool) {
	id, ok := s.byBarcode[code]
	if !ok {
		return Product{}, false
	}
	return s.products[id], true
}

// ByKey returns the product whose folded name+brand key matches exactly.
func (s *Snapshot) ByKey(name, brand string) (Product, bool) {
	id, ok := s.byKey[normalize.Key(name, brand)]
	if !ok {
		return Product{}, false
	}
	return s.products[id], true
}

// BrandBucket returns the products sharing a folded brand.
func (s *Snapshot) BrandBucket(brand string) []Product {
	return s.bucket(s.byBrand, normalize.Fold(brand))
}

// CategoryBucket returns the products sharing a folded category.
func (s *Snapshot) CategoryBucket(category string) []Product {
	return s.bucket(s.byCategory, normalize.Fold(category))
}

func (s *Snapshot) bucket(index map[string][]ProductID, key string) []Product {
	ids := index[key]
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.products[id])
	}
	return out
}
