// Package catalogs holds the canonical product catalog: the deduplicated
// record set that retailer listings resolve against. The in-memory catalog
// enforces the barcode uniqueness invariant on every write, so a normalized
// barcode can never point at two canonical products.
//
// Example usage:
//
//	catalog := catalogs.New()
//	err := catalog.SetProduct(catalogs.Product{
//	    ID:             catalogs.DeriveID("7290000000008", "", ""),
//	    Name:           "Soft Cream 200ml",
//	    Brand:          "Nivea",
//	    PrimaryBarcode: "7290000000008",
//	})
package catalogs

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/shelfmatch/shelfmatch/pkg/barcode"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// Compile-time interface checks to ensure proper implementation.
var (
	_ Catalog = (*catalog)(nil)
	_ Reader  = (*catalog)(nil)
	_ Writer  = (*catalog)(nil)
	_ Copier  = (*catalog)(nil)
)

// catalog is the in-memory Catalog implementation. The mutex guards the
// barcode index together with the product collection so check-then-write
// sequences are atomic.
type catalog struct {
	mu       sync.RWMutex
	products *Products
	barcodes map[string]ProductID // every barcode, primary and secondary
}

// Option configures a catalog.
type Option func(*catalog)

// WithInitialProducts seeds the catalog. Products that violate the barcode
// constraint are skipped in favor of the earlier holder.
func WithInitialProducts(products []Product) Option {
	return func(c *catalog) {
		for i := range products {
			_ = c.SetProduct(products[i])
		}
	}
}

// New creates an in-memory catalog.
func New(opts ...Option) Catalog {
	c := &catalog{
		products: NewProducts(),
		barcodes: make(map[string]ProductID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Products returns the live product collection. Mutations must go through
// the catalog so the barcode index stays coherent.
func (c *catalog) Products() *Products {
	return c.products
}

// Product returns a copy of a product by id.
func (c *catalog) Product(id ProductID) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products.Get(id)
	if !ok {
		return Product{}, errors.NewNotFoundError("product", id.String())
	}
	return p.Clone(), nil
}

// ProductByBarcode returns the product holding a normalized barcode.
func (c *catalog) ProductByBarcode(code string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.barcodes[code]
	if !ok {
		return Product{}, errors.NewNotFoundError("product", code)
	}
	p, ok := c.products.Get(id)
	if !ok {
		return Product{}, errors.NewNotFoundError("product", id.String())
	}
	return p.Clone(), nil
}

// SetProduct upserts a product. Barcodes are normalized before indexing so
// the index and the matching tier agree on one form; a barcode already held
// by a different product is a ConstraintError naming the holder.
func (c *catalog) SetProduct(product Product) error {
	if product.ID == "" {
		return errors.NewValidationError("id", product.ID, "cannot be empty")
	}
	if product.Name == "" {
		return errors.NewValidationError("name", product.Name, "cannot be empty")
	}
	if err := normalizeBarcodes(&product); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, code := range product.Barcodes() {
		if holder, ok := c.barcodes[code]; ok && holder != product.ID {
			return errors.NewConstraintError("primary-barcode", code, holder.String())
		}
	}

	// Drop index entries for barcodes the product no longer carries.
	if prev, ok := c.products.Get(product.ID); ok {
		for _, code := range prev.Barcodes() {
			if !product.HasBarcode(code) {
				delete(c.barcodes, code)
			}
		}
	}

	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	clone := product.Clone()
	if err := c.products.Set(clone.ID, &clone); err != nil {
		return err
	}
	for _, code := range clone.Barcodes() {
		c.barcodes[code] = clone.ID
	}
	return nil
}

// normalizeBarcodes canonicalizes every barcode on the product, dropping
// secondaries that collapse into a code the product already carries. The
// caller's slice is never mutated.
func normalizeBarcodes(product *Product) error {
	if product.PrimaryBarcode != "" {
		code, err := barcode.Normalize(product.PrimaryBarcode)
		if err != nil {
			return err
		}
		product.PrimaryBarcode = code
	}

	if len(product.SecondaryBarcodes) == 0 {
		return nil
	}
	seen := map[string]struct{}{product.PrimaryBarcode: {}}
	secondaries := make([]string, 0, len(product.SecondaryBarcodes))
	for _, raw := range product.SecondaryBarcodes {
		code, err := barcode.Normalize(raw)
		if err != nil {
			return err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		secondaries = append(secondaries, code)
	}
	product.SecondaryBarcodes = secondaries
	return nil
}

// AddProduct adds a product, failing if the ID already exists.
func (c *catalog) AddProduct(product Product) error {
	if c.products.Exists(product.ID) {
		return errors.NewConstraintError("canonical-id", product.ID.String(), product.ID.String())
	}
	return c.SetProduct(product)
}

// EnsureProduct upserts a product and converges on the existing holder when
// a barcode is already claimed: the caller links to the winner instead of
// creating a duplicate.
func (c *catalog) EnsureProduct(product Product) (Product, error) {
	err := c.SetProduct(product)
	if err == nil {
		return c.Product(product.ID)
	}

	var constraint *errors.ConstraintError
	if stderrors.As(err, &constraint) && constraint.HolderID != "" {
		return c.Product(ProductID(constraint.HolderID))
	}
	return Product{}, err
}

// DeleteProduct removes a product and its barcode index entries.
func (c *catalog) DeleteProduct(id ProductID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products.Get(id)
	if !ok {
		return errors.NewNotFoundError("product", id.String())
	}
	for _, code := range p.Barcodes() {
		delete(c.barcodes, code)
	}
	return c.products.Delete(id)
}

// Copy returns a deep copy of the catalog.
func (c *catalog) Copy() (Catalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &catalog{
		products: NewProducts(WithProductsCapacity(c.products.Len())),
		barcodes: make(map[string]ProductID, len(c.barcodes)),
	}
	var copyErr error
	c.products.ForEach(func(id ProductID, p *Product) bool {
		cp := p.Clone()
		if err := clone.products.Set(id, &cp); err != nil {
			copyErr = err
			return false
		}
		return true
	})
	if copyErr != nil {
		return nil, copyErr
	}
	for code, id := range c.barcodes {
		clone.barcodes[code] = id
	}
	return clone, nil
}
