package match

import (
	"context"
	"time"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
)

// Candidate is an ephemeral scored pairing of a listing and a canonical
// product, produced by a single tier during one cascade run.
type Candidate struct {
	ProductID  catalogs.ProductID `yaml:"product_id"`
	Method     Method             `yaml:"method"`
	Score      float64            `yaml:"score"`
	Confidence float64            `yaml:"confidence"`
}

// Result is the persisted listing-to-canonical mapping.
type Result struct {
	ListingRef string             `yaml:"listing_ref"`
	ProductID  catalogs.ProductID `yaml:"product_id"`
	Method     Method             `yaml:"method"`
	Confidence float64            `yaml:"confidence"`
	MatchedAt  time.Time          `yaml:"matched_at"`
}

// SemanticHit is one nearest-neighbor answer from a vector index.
type SemanticHit struct {
	ProductID  catalogs.ProductID
	Similarity float64
}

// SemanticIndex resolves free text to nearby canonical products. The
/// embedding tier degrades gracefully: an error or timeout skips the tier
// rather than failing the listing.
type SemanticIndex interface {
	Nearest(ctx context.Context, text string, k int) ([]SemanticHit, error)
}
