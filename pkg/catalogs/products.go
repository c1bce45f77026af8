package catalogs

import (
	"maps"
	"sort"
	"sync"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// Products is a concurrent safe map of canonical products.
type Products struct {
	mu       sync.RWMutex
	products map[ProductID]*Product
}

// ProductsOption defines a function that configures a Products instance.
type ProductsOption func(*Products)

// WithProductsCapacity sets the initial capacity of the products map.
func WithProductsCapacity(capacity int) ProductsOption {
	return func(p *Products) {
		p.products = make(map[ProductID]*Product, capacity)
	}
}

// WithProductsMap initializes the map with existing products.
func WithProductsMap(products map[ProductID]*Product) ProductsOption {
	return func(p *Products) {
		if products != nil {
			p.products = make(map[ProductID]*Product, len(products))
			maps.Copy(p.products, products)
		}
	}
}

// NewProducts creates a new Products map with optional configuration.
func NewProducts(opts ...ProductsOption) *Products {
	p := &Products{
		products: make(map[ProductID]*Product),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Get returns a product by id and whether it exists.
func (p *Products) Get(id ProductID) (*Product, bool) {
	p.mu.RLock()
	product, ok := p.products[id]
	p.mu.RUnlock()
	return product, ok
}

// Set sets a product by id. Returns an error if product is nil.
func (p *Products) Set(id ProductID, product *Product) error {
	if product == nil {
		return errors.NewValidationError("product", nil, "cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.products[id] = product
	return nil
}

// Add adds a product, returning an error if it already exists.
func (p *Products) Add(product *Product) error {
	if product == nil {
		return errors.NewValidationError("product", nil, "cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.products[product.ID]; exists {
		return errors.NewConstraintError("canonical-id", product.ID.String(), product.ID.String())
	}

	p.products[product.ID] = product
	return nil
}

// Delete removes a product by id. Returns an error if the product doesn't exist.
func (p *Products) Delete(id ProductID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.products[id]; !exists {
		return errors.NewNotFoundError("product", id.String())
	}

	delete(p.products, id)
	return nil
}

// Exists checks if a product exists without returning it.
func (p *Products) Exists(id ProductID) bool {
	p.mu.RLock()
	_, exists := p.products[id]
	p.mu.RUnlock()
	return exists
}

// Len returns the number of products.
func (p *Products) Len() int {
	p.mu.RLock()
	length := len(p.products)
	p.mu.RUnlock()
	return length
}

// List returns a slice of all products sorted by ID for stable iteration.
func (p *Products) List() []*Product {
	p.mu.RLock()
	products := make([]*Product, 0, len(p.products))
	for _, product := range p.products {
		products = append(products, product)
	}
	p.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool {
		return products[i].ID < products[j].ID
	})
	return products
}

// Map returns a copy of all products.
func (p *Products) Map() map[ProductID]*Product {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[ProductID]*Product, len(p.products))
	maps.Copy(result, p.products)
	return result
}

// ForEach applies a function to each product. The function should not modify
// the product. If the function returns false, iteration stops early.
func (p *Products) ForEach(fn func(id ProductID, product *Product) bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for id, product := range p.products {
		if !fn(id, product) {
			break
		}
	}
}

// Clear removes all products.
func (p *Products) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.products {
		delete(p.products, k)
	}
}
