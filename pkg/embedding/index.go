package embedding

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelfmatch/shelfmatch/internal/normalize"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/logging"
	"github.com/shelfmatch/shelfmatch/pkg/match"
)

// Index is an in-memory vector index over canonical products. Lookups are
// exact cosine scans; catalogs at this scale do not need an ANN structure.
type Index struct {
	embedder Embedder

	mu      sync.RWMutex
	vectors map[catalogs.ProductID][]float32
}

// Compile-time check: the index serves the cascade's semantic tier.
var _ match.SemanticIndex = (*Index)(nil)

// NewIndex creates an empty index backed by the given embedder.
func NewIndex(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		vectors:  make(map[catalogs.ProductID][]float32),
	}
}

// indexText is the text a product is embedded under. It matches the query
// text the cascade builds for a listing.
func indexText(name, brand string) string {
	return normalize.Fold(name + " " + brand)
}

// Build embeds every product in the snapshot, replacing the current index
// contents. Embedding calls run concurrently with a bounded pool.
func (ix *Index) Build(ctx context.Context, snap *catalogs.Snapshot) error {
	products := snap.Products()
	vectors := make(map[catalogs.ProductID][]float32, len(products))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range products {
		p := products[i]
		g.Go(func() error {
			text := indexText(p.Name, p.Brand)
			if text == "" {
				return nil
			}
			vec, err := ix.embedder.Embed(gctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			vectors[p.ID] = vec
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.vectors = vectors
	ix.mu.Unlock()

	logging.FromContext(ctx).Info().
		Int("products", len(vectors)).
		Msg("embedding index built")
	return nil
}

// Upsert embeds one product and adds or replaces its vector.
func (ix *Index) Upsert(ctx context.Context, p catalogs.Product) error {
	text := indexText(p.Name, p.Brand)
	if text == "" {
		return nil
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.vectors[p.ID] = vec
	ix.mu.Unlock()
	return nil
}

// Remove drops a product's vector, if present.
func (ix *Index) Remove(id catalogs.ProductID) {
	ix.mu.Lock()
	delete(ix.vectors, id)
	ix.mu.Unlock()
}

// Len returns the number of indexed products.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Nearest embeds the query text and returns the k most similar products,
// similarity-descending with product ID as a deterministic tie-break.
func (ix *Index) Nearest(ctx context.Context, text string, k int) ([]match.SemanticHit, error) {
	if k <= 0 {
		return nil, nil
	}

	query, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	hits := make([]match.SemanticHit, 0, len(ix.vectors))
	for id, vec := range ix.vectors {
		sim, ok := cosine(query, vec)
		if !ok {
			continue
		}
		hits = append(hits, match.SemanticHit{ProductID: id, Similarity: sim})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ProductID < hits[j].ProductID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosine returns the cosine similarity of two vectors. It reports false for
// mismatched dimensions or zero-magnitude vectors.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
