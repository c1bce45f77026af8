package catalogs

import (
	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// Listing is a raw retailer record as delivered by ingestion. Listings are
// immutable inputs; resolution writes mappings, never edits the listing.
type Listing struct {
	RetailerID   string `yaml:"retailer_id"`
	ItemCode     string `yaml:"item_code"`
	RawName      string `yaml:"raw_name"`
	RawBrand     string `yaml:"raw_brand,omitempty"`
	Barcode      string `yaml:"barcode,omitempty"` // unvalidated, may be empty
	CategoryHint string `yaml:"category_hint,omitempty"`
}

// Ref returns the listing's identity: retailer ID and item code.
func (l *Listing) Ref() string {
	return l.RetailerID + "/" + l.ItemCode
}

// Validate checks that the listing carries the fields resolution requires.
func (l *Listing) Validate() error {
	if l.RetailerID == "" {
		return errors.NewValidationError("retailer_id", l.RetailerID, "cannot be empty")
	}
	if l.ItemCode == "" {
		return errors.NewValidationError("item_code", l.ItemCode, "cannot be empty")
	}
	if l.RawName == "" {
		return errors.NewValidationError("raw_name", l.RawName, "cannot be empty")
	}
	return nil
}
