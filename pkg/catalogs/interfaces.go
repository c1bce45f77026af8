package catalogs

// Reader provides read-only access to catalog data.
type Reader interface {
	// Products returns the live product collection
	Products() *Products

	// Product returns a product by id
	Product(id ProductID) (Product, error)

	// ProductByBarcode returns the product holding a normalized barcode,
	// whether primary or secondary
	ProductByBarcode(code string) (Product, error)
}

// Writer provides write operations for catalog data.
type Writer interface {
	// SetProduct upserts a product while enforcing barcode uniqueness
	SetProduct(product Product) error

	// AddProduct adds a product, failing if the ID already exists
	AddProduct(product Product) error

	// EnsureProduct upserts a product, converging on the existing holder
	// when its barcode is already claimed. Returns the winning product.
	EnsureProduct(product Product) (Product, error)

	// DeleteProduct removes a product by id
	DeleteProduct(id ProductID) error
}

// Copier provides catalog copying capabilities.
type Copier interface {
	// Return a deep copy of the catalog
	Copy() (Catalog, error)
}

// Catalog is the complete interface combining all catalog capabilities.
// This interface is composed of smaller, focused interfaces following
// the Interface Segregation Principle.
type Catalog interface {
	Reader
	Writer
	Copier
}

// ReadOnlyCatalog provides read-only access to a catalog.
type ReadOnlyCatalog interface {
	Reader
	Copier
}
