package match

import (
	"context"
	"sort"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
	"github.com/shelfmatch/shelfmatch/pkg/barcode"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/logging"
)

// Config holds the cascade thresholds. The values are empirically chosen
// and tunable, not derived guarantees.
type Config struct {
	// FuzzyThreshold is the minimum weighted similarity the fuzzy tier accepts.
	FuzzyThreshold float64
	// Fuzzy sub-metric weights; must sum to 1.
	WeightRatio     float64
	WeightPartial   float64
	WeightTokenSort float64

	// EmbeddingThreshold is the minimum cosine similarity the embedding tier accepts.
	EmbeddingThreshold float64
	// EmbeddingWeight scales raw similarity into confidence.
	EmbeddingWeight float64
	// EmbeddingTimeout bounds each vector lookup; timeout skips the tier.
	EmbeddingTimeout time.Duration
	// EmbeddingTopK is how many neighbors to request.
	EmbeddingTopK int

	// CategoryMinConfidence is the floor of the category tier's confidence band.
	CategoryMinConfidence float64
	// CategoryWeight scales raw partial overlap into confidence.
	CategoryWeight float64

	// QueueCandidates caps how many candidates a queue entry carries.
	QueueCandidates int

	// ExactConfidence is the fixed confidence of the exact name+brand tier.
	ExactConfidence float64
}

// DefaultConfig returns the standard cascade thresholds.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:        0.85,
		WeightRatio:           0.4,
		WeightPartial:         0.3,
		WeightTokenSort:       0.3,
		EmbeddingThreshold:    0.75,
		EmbeddingWeight:       0.9,
		EmbeddingTimeout:      2 * time.Second,
		EmbeddingTopK:         5,
		CategoryMinConfidence: 0.5,
		CategoryWeight:        0.7,
		QueueCandidates:       5,
		ExactConfidence:       0.95,
	}
}

// Cascade runs the resolution tiers against a catalog snapshot.
type Cascade struct {
	cfg      Config
	semantic SemanticIndex
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) CascadeOption {
	return func(c *Cascade) {
		c.cfg = cfg
	}
}

// WithSemanticIndex enables the embedding tier. Without an index the tier
// is skipped entirely.
func WithSemanticIndex(index SemanticIndex) CascadeOption {
	return func(c *Cascade) {
		c.semantic = index
	}
}

// NewCascade creates a cascade with the given options.
func NewCascade(opts ...CascadeOption) *Cascade {
	c := &Cascade{
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Match runs the cascade for one listing against a snapshot.
//
// On acceptance it returns the Result and a nil candidate list. When no tier
// accepts, it returns ErrNoMatch together with the best candidates seen
// across all tiers (sub-threshold included), score-descending, capped to
// Config.QueueCandidates. Exactly one of the two outcomes occurs.
func (c *Cascade) Match(ctx context.Context, snap *catalogs.Snapshot, listing catalogs.Listing) (*Result, []Candidate, error) {
	if err := listing.Validate(); err != nil {
		return nil, nil, err
	}

	log := logging.FromContext(ctx)
	collector := newCandidateCollector()

	tiers := []func(context.Context, *catalogs.Snapshot, catalogs.Listing, *candidateCollector) *Candidate{
		c.matchBarcode,
		c.matchExact,
		c.matchFuzzy,
		c.matchEmbedding,
		c.matchCategory,
	}

	for _, tier := range tiers {
		if accepted := tier(ctx, snap, listing, collector); accepted != nil {
			log.Debug().
				Str("listing", listing.Ref()).
				Str("method", accepted.Method.String()).
				Float64("confidence", accepted.Confidence).
				Msg("cascade accepted")
			return &Result{
				ListingRef: listing.Ref(),
				ProductID:  accepted.ProductID,
				Method:     accepted.Method,
				Confidence: accepted.Confidence,
				MatchedAt:  time.Now(),
			}, nil, nil
		}
	}

	candidates := collector.top(c.cfg.QueueCandidates)
	log.Debug().
		Str("listing", listing.Ref()).
		Int("candidates", len(candidates)).
		Msg("cascade exhausted")
	return nil, candidates, errors.ErrNoMatch
}

// matchBarcode implements tier 1: normalized barcode equality, confidence
// fixed at 1.0. An invalid barcode excludes the tier, never the listing.
func (c *Cascade) matchBarcode(ctx context.Context, snap *catalogs.Snapshot, listing catalogs.Listing, _ *candidateCollector) *Candidate {
	if listing.Barcode == "" {
		return nil
	}

	code, err := barcode.Normalize(listing.Barcode)
	if err != nil {
		logging.FromContext(ctx).Debug().
			Str("listing", listing.Ref()).
			Err(err).
			Msg("barcode tier excluded")
		return nil
	}

	p, ok := snap.ByBarcode(code)
	if !ok {
		return nil
	}
	return &Candidate{ProductID: p.ID, Method: MethodBarcode, Score: 1.0, Confidence: 1.0}
}

// matchExact implements tier 2: case-insensitive exact equality of name and
// brand, confidence fixed at 0.95.
func (c *Cascade) matchExact(_ context.Context, snap *catalogs.Snapshot, listing catalogs.Listing, _ *candidateCollector) *Candidate {
	p, ok := snap.ByKey(listing.RawName, listing.RawBrand)
	if !ok {
		return nil
	}
	return &Candidate{ProductID: p.ID, Method: MethodExact, Score: 1.0, Confidence: c.cfg.ExactConfidence}
}

// matchFuzzy implements tier 3: weighted similarity over the name+brand
// concatenation, scoped to the brand bucket when a brand is present.
func (c *Cascade) matchFuzzy(_ context.Context, snap *catalogs.Snapshot, listing catalogs.Listing, collector *candidateCollector) *Candidate {
	query := normalize.Fold(listing.RawName + " " + listing.RawBrand)
	if query == "" {
		return nil
	}

	pool := snap.Products()
	if normalize.Fold(listing.RawBrand) != "" {
		pool = snap.BrandBucket(listing.RawBrand)
	}

	var best *Candidate
	for i := range pool {
		p := &pool[i]
		target := normalize.Fold(p.Name + " " + p.Brand)
		if target == "" {
			continue
		}

		score := c.fuzzyScore(query, target)
		cand := Candidate{ProductID: p.ID, Method: MethodFuzzy, Score: score, Confidence: score}
		collector.add(cand)

		// Strictly greater keeps the first-seen product on ties; the pool
		// is in ID order, so the outcome is deterministic.
		if best == nil || score > best.Score {
			clone := cand
			best = &clone
		}
	}

	if best != nil && best.Score >= c.cfg.FuzzyThreshold {
		return best
	}
	return nil
}

// fuzzyScore combines ratio, partial ratio, and token sort ratio into one
// weighted similarity in [0,1].
func (c *Cascade) fuzzyScore(a, b string) float64 {
	return (c.cfg.WeightRatio*float64(fuzzy.Ratio(a, b)) +
		c.cfg.WeightPartial*float64(fuzzy.PartialRatio(a, b)) +
		c.cfg.WeightTokenSort*float64(fuzzy.TokenSortRatio(a, b))) / 100
}

// matchEmbedding implements tier 4: nearest-neighbor lookup over canonical
// name embeddings. The lookup is bounded by a timeout and any failure
// degrades to the next tier.
func (c *Cascade) matchEmbedding(ctx context.Context, _ *catalogs.Snapshot, listing catalogs.Listing, collector *candidateCollector) *Candidate {
	if c.semantic == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbeddingTimeout)
	defer cancel()

	text := normalize.Fold(listing.RawName + " " + listing.RawBrand)
	hits, err := c.semantic.Nearest(lookupCtx, text, c.cfg.EmbeddingTopK)
	if err != nil {
		logging.FromContext(ctx).Warn().
			Str("listing", listing.Ref()).
			Err(err).
			Msg("embedding tier skipped")
		return nil
	}

	var best *Candidate
	for _, hit := range hits {
		cand := Candidate{
			ProductID:  hit.ProductID,
			Method:     MethodEmbedding,
			Score:      hit.Similarity,
			Confidence: hit.Similarity * c.cfg.EmbeddingWeight,
		}
		collector.add(cand)
		if best == nil || cand.Score > best.Score {
			clone := cand
			best = &clone
		}
	}

	if best != nil && best.Score >= c.cfg.EmbeddingThreshold {
		return best
	}
	return nil
}

// matchCategory implements tier 5: category equality plus partial name
// overlap. Confidence is raw overlap scaled by CategoryWeight, accepted
// only inside the configured band.
func (c *Cascade) matchCategory(_ context.Context, snap *catalogs.Snapshot, listing catalogs.Listing, collector *candidateCollector) *Candidate {
	if normalize.Fold(listing.CategoryHint) == "" {
		return nil
	}

	query := normalize.Fold(listing.RawName)
	if query == "" {
		return nil
	}

	var best *Candidate
	for _, p := range snap.CategoryBucket(listing.CategoryHint) {
		target := normalize.Fold(p.Name)
		if target == "" {
			continue
		}

		raw := float64(fuzzy.PartialRatio(query, target)) / 100
		cand := Candidate{
			ProductID:  p.ID,
			Method:     MethodCategory,
			Score:      raw,
			Confidence: raw * c.cfg.CategoryWeight,
		}
		collector.add(cand)
		if best == nil || cand.Score > best.Score {
			clone := cand
			best = &clone
		}
	}

	if best != nil && best.Confidence >= c.cfg.CategoryMinConfidence {
		return best
	}
	return nil
}

// candidateCollector gathers every candidate seen across tiers, keeping the
// best-scoring entry per product.
type candidateCollector struct {
	byProduct map[catalogs.ProductID]Candidate
}

func newCandidateCollector() *candidateCollector {
	return &candidateCollector{
		byProduct: make(map[catalogs.ProductID]Candidate),
	}
}

func (cc *candidateCollector) add(cand Candidate) {
	prev, ok := cc.byProduct[cand.ProductID]
	if !ok || cand.Score > prev.Score {
		cc.byProduct[cand.ProductID] = cand
	}
}

// top returns the n best candidates, score-descending with product ID as a
// deterministic tie-break.
func (cc *candidateCollector) top(n int) []Candidate {
	out := make([]Candidate, 0, len(cc.byProduct))
	for _, cand := range cc.byProduct {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
