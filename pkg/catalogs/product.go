package catalogs

import (
	"crypto/md5" //nolint:gosec // non-cryptographic fingerprint for ID derivation
	"encoding/hex"
	"time"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
)

// ProductID uniquely identifies a canonical product. IDs are derived once at
// creation and never reassigned, even across merges.
type ProductID string

// String returns the string representation of a product ID.
func (id ProductID) String() string {
	return string(id)
}

// Product is a canonical product: the single record a group of retailer
// listings resolves to.
type Product struct {
	ID                ProductID         `yaml:"id"`
	Name              string            `yaml:"name"`
	Brand             string            `yaml:"brand,omitempty"`
	Category          string            `yaml:"category,omitempty"`
	PrimaryBarcode    string            `yaml:"primary_barcode,omitempty"`
	SecondaryBarcodes []string          `yaml:"secondary_barcodes,omitempty"`
	ImageURL          string            `yaml:"image_url,omitempty"`
	Attributes        map[string]string `yaml:"attributes,omitempty"`
	CreatedAt         time.Time         `yaml:"created_at,omitempty"`
	UpdatedAt         time.Time         `yaml:"updated_at,omitempty"`
}

// DeriveID computes the canonical ID for a product. Barcode-backed products
// get "canon_<barcode>"; the rest get a stable fingerprint of the folded
// brand and name.
func DeriveID(barcode, brand, name string) ProductID {
	if barcode != "" {
		return ProductID("canon_" + barcode)
	}
	sum := md5.Sum([]byte(normalize.Fold(brand) + "_" + normalize.Fold(name))) //nolint:gosec
	return ProductID("canon_" + hex.EncodeToString(sum[:])[:12])
}

// HasBarcode reports whether the product carries the given barcode as its
// primary or one of its secondaries.
func (p *Product) HasBarcode(code string) bool {
	if code == "" {
		return false
	}
	if p.PrimaryBarcode == code {
		return true
	}
	for _, b := range p.SecondaryBarcodes {
		if b == code {
			return true
		}
	}
	return false
}

// Barcodes returns the primary barcode followed by all secondaries.
func (p *Product) Barcodes() []string {
	codes := make([]string, 0, 1+len(p.SecondaryBarcodes))
	if p.PrimaryBarcode != "" {
		codes = append(codes, p.PrimaryBarcode)
	}
	codes = append(codes, p.SecondaryBarcodes...)
	return codes
}

// MatchKey returns the folded name+brand key used by the exact tier.
func (p *Product) MatchKey() string {
	return normalize.Key(p.Name, p.Brand)
}

// Clone returns a deep copy of the product.
func (p *Product) Clone() Product {
	clone := *p
	if p.SecondaryBarcodes != nil {
		clone.SecondaryBarcodes = make([]string, len(p.SecondaryBarcodes))
		copy(clone.SecondaryBarcodes, p.SecondaryBarcodes)
	}
	if p.Attributes != nil {
		clone.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			clone.Attributes[k] = v
		}
	}
	return clone
}
