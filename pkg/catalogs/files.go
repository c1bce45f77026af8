package catalogs

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// catalogFile is the YAML document shape for a persisted catalog.
type catalogFile struct {
	Products []Product `yaml:"products"`
}

// listingsFile is the YAML document shape for an ingested listings export.
type listingsFile struct {
	Listings []Listing `yaml:"listings"`
}

// LoadCatalog reads a YAML catalog file into an in-memory catalog.
// The barcode constraint is enforced record by record; a violating record
// fails the load rather than silently shadowing the earlier holder.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	c := New()
	for i := range doc.Products {
		if err := c.SetProduct(doc.Products[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SaveCatalog writes a catalog to a YAML file.
func SaveCatalog(path string, r Reader) error {
	doc := catalogFile{}
	for _, p := range r.Products().List() {
		doc.Products = append(doc.Products, p.Clone())
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// LoadListings reads a YAML listings export. Every listing must be valid;
// ingestion is the collaborator's job, so malformed records fail fast here.
func LoadListings(path string) ([]Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc listingsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	for i := range doc.Listings {
		if err := doc.Listings[i].Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Listings, nil
}
