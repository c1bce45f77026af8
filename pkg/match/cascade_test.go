package match_test

import (
	"context"
	"testing"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSemantic is a canned SemanticIndex for cascade tests.
type stubSemantic struct {
	hits  []match.SemanticHit
	err   error
	calls int
}

func (s *stubSemantic) Nearest(_ context.Context, _ string, _ int) ([]match.SemanticHit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func cascadeSnapshot(t *testing.T) *catalogs.Snapshot {
	t.Helper()

	c := catalogs.New()
	products := []catalogs.Product{
		{
			ID:             "canon_4006381333931",
			Name:           "Advil Liqui-Gels 200mg",
			Brand:          "Advil",
			Category:       "pain relief",
			PrimaryBarcode: "4006381333931",
		},
		{
			ID:       "canon_aaa111bbb222",
			Name:     "Total Toothpaste",
			Brand:    "Colgate",
			Category: "oral care",
		},
		{
			ID:       "canon_ccc333ddd444",
			Name:     "Soft Cream 200ml",
			Brand:    "Nivea",
			Category: "skin care",
		},
	}
	for i := range products {
		require.NoError(t, c.SetProduct(products[i]))
	}
	return catalogs.NewSnapshot(c)
}

func TestCascadeBarcodeTier(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	listing := catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "1",
		RawName:    "something entirely different",
		Barcode:    "4006381333931",
	}

	result, candidates, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, candidates)
	assert.Equal(t, match.MethodBarcode, result.Method)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, catalogs.ProductID("canon_4006381333931"), result.ProductID)
	assert.Equal(t, "superpharm/1", result.ListingRef)
}

func TestCascadeBarcodeTierMatchesZeroPaddedSeed(t *testing.T) {
	// Seed data often pads codes with leading zeros; the catalog normalizes
	// on write so the index and the listing side agree.
	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:             "canon_4006381333931",
		Name:           "Advil Liqui-Gels 200mg",
		Brand:          "Advil",
		PrimaryBarcode: "04006381333931",
	}))
	cascade := match.NewCascade()

	listing := catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "9",
		RawName:    "something entirely different",
		Barcode:    "4006381333931",
	}

	result, _, err := cascade.Match(context.Background(), catalogs.NewSnapshot(c), listing)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, match.MethodBarcode, result.Method)
	assert.Equal(t, catalogs.ProductID("canon_4006381333931"), result.ProductID)
}

func TestCascadeInvalidBarcodeFallsThrough(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	// Seven digits: barcode tier excluded, exact tier still matches.
	listing := catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "2",
		RawName:    "ADVIL LIQUI-GELS 200MG",
		RawBrand:   "advil",
		Barcode:    "0000000",
	}

	result, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	assert.Equal(t, match.MethodExact, result.Method)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestCascadeExactTier(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	listing := catalogs.Listing{
		RetailerID: "goodpharm",
		ItemCode:   "10",
		RawName:    "total toothpaste",
		RawBrand:   "COLGATE",
	}

	result, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	assert.Equal(t, match.MethodExact, result.Method)
	assert.Equal(t, catalogs.ProductID("canon_aaa111bbb222"), result.ProductID)
}

func TestCascadeFuzzyTier(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	// Close but not exact: punctuation and spacing noise.
	listing := catalogs.Listing{
		RetailerID: "goodpharm",
		ItemCode:   "11",
		RawName:    "advil liqui gels 200 mg",
		RawBrand:   "Advil",
	}

	result, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	assert.Equal(t, match.MethodFuzzy, result.Method)
	assert.Equal(t, catalogs.ProductID("canon_4006381333931"), result.ProductID)
	assert.GreaterOrEqual(t, result.Confidence, 0.85)
	// Fuzzy confidence equals the raw weighted score.
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestCascadeEmbeddingTier(t *testing.T) {
	snap := cascadeSnapshot(t)

	t.Run("accepts above threshold", func(t *testing.T) {
		semantic := &stubSemantic{hits: []match.SemanticHit{
			{ProductID: "canon_ccc333ddd444", Similarity: 0.80},
			{ProductID: "canon_aaa111bbb222", Similarity: 0.40},
		}}
		cascade := match.NewCascade(match.WithSemanticIndex(semantic))

		listing := catalogs.Listing{
			RetailerID: "be",
			ItemCode:   "20",
			RawName:    "creme hydrating bodycare",
		}

		result, _, err := cascade.Match(context.Background(), snap, listing)
		require.NoError(t, err)
		assert.Equal(t, match.MethodEmbedding, result.Method)
		assert.Equal(t, catalogs.ProductID("canon_ccc333ddd444"), result.ProductID)
		assert.InDelta(t, 0.80*0.9, result.Confidence, 1e-9)
	})

	t.Run("below threshold collects candidates", func(t *testing.T) {
		semantic := &stubSemantic{hits: []match.SemanticHit{
			{ProductID: "canon_ccc333ddd444", Similarity: 0.60},
		}}
		cascade := match.NewCascade(match.WithSemanticIndex(semantic))

		listing := catalogs.Listing{
			RetailerID: "be",
			ItemCode:   "21",
			RawName:    "completely unrelated item zzz",
		}

		result, candidates, err := cascade.Match(context.Background(), snap, listing)
		assert.True(t, errors.IsNoMatch(err))
		assert.Nil(t, result)

		found := false
		for _, cand := range candidates {
			if cand.Method == match.MethodEmbedding && cand.ProductID == "canon_ccc333ddd444" {
				found = true
			}
		}
		assert.True(t, found, "sub-threshold embedding candidate should reach the queue list")
	})

	t.Run("lookup failure degrades to next tier", func(t *testing.T) {
		semantic := &stubSemantic{err: errors.ErrTimeout}
		cascade := match.NewCascade(match.WithSemanticIndex(semantic))

		listing := catalogs.Listing{
			RetailerID:   "be",
			ItemCode:     "22",
			RawName:      "Toothpaste",
			CategoryHint: "oral care",
		}

		result, _, err := cascade.Match(context.Background(), snap, listing)
		require.NoError(t, err)
		assert.Equal(t, match.MethodCategory, result.Method)
		assert.Equal(t, 1, semantic.calls)
	})
}

func TestCascadeCategoryTier(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	t.Run("accepts within band", func(t *testing.T) {
		// "toothpaste" is a full substring of "total toothpaste": raw
		// partial overlap 1.0, confidence capped at 0.7.
		listing := catalogs.Listing{
			RetailerID:   "be",
			ItemCode:     "30",
			RawName:      "Toothpaste",
			CategoryHint: "oral care",
		}

		result, _, err := cascade.Match(context.Background(), snap, listing)
		require.NoError(t, err)
		assert.Equal(t, match.MethodCategory, result.Method)
		assert.InDelta(t, 0.7, result.Confidence, 1e-9)
		assert.GreaterOrEqual(t, result.Confidence, 0.5)
	})

	t.Run("no category hint skips tier", func(t *testing.T) {
		listing := catalogs.Listing{
			RetailerID: "be",
			ItemCode:   "31",
			RawName:    "Toothpaste",
		}

		_, _, err := cascade.Match(context.Background(), snap, listing)
		assert.True(t, errors.IsNoMatch(err))
	})

	t.Run("weak overlap rejected", func(t *testing.T) {
		listing := catalogs.Listing{
			RetailerID:   "be",
			ItemCode:     "32",
			RawName:      "xylophone quartz zebra",
			CategoryHint: "oral care",
		}

		_, _, err := cascade.Match(context.Background(), snap, listing)
		assert.True(t, errors.IsNoMatch(err))
	})
}

func TestCascadeTierMonotonicity(t *testing.T) {
	// A barcode acceptance must leave later tiers uninvoked.
	snap := cascadeSnapshot(t)
	semantic := &stubSemantic{hits: []match.SemanticHit{
		{ProductID: "canon_ccc333ddd444", Similarity: 0.99},
	}}
	cascade := match.NewCascade(match.WithSemanticIndex(semantic))

	listing := catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "40",
		RawName:    "whatever",
		Barcode:    "4006381333931",
	}

	result, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	assert.Equal(t, match.MethodBarcode, result.Method)
	assert.Equal(t, 0, semantic.calls)
}

func TestCascadeIdempotence(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	listing := catalogs.Listing{
		RetailerID: "goodpharm",
		ItemCode:   "50",
		RawName:    "advil liqui gels 200 mg",
		RawBrand:   "Advil",
	}

	first, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)
	second, _, err := cascade.Match(context.Background(), snap, listing)
	require.NoError(t, err)

	assert.Equal(t, first.ProductID, second.ProductID)
	assert.Equal(t, first.Method, second.Method)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestCascadeQueueCandidates(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	// No brand: fuzzy scans the whole catalog and collects sub-threshold
	// candidates for the queue.
	listing := catalogs.Listing{
		RetailerID: "be",
		ItemCode:   "60",
		RawName:    "advil gels",
	}

	result, candidates, err := cascade.Match(context.Background(), snap, listing)
	assert.True(t, errors.IsNoMatch(err))
	assert.Nil(t, result)
	require.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), 5)

	// Best first, deterministic order.
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
	assert.Equal(t, catalogs.ProductID("canon_4006381333931"), candidates[0].ProductID)
}

func TestCascadeInvalidListing(t *testing.T) {
	snap := cascadeSnapshot(t)
	cascade := match.NewCascade()

	_, _, err := cascade.Match(context.Background(), snap, catalogs.Listing{RetailerID: "x"})
	assert.True(t, errors.IsValidationError(err))
}

func TestMethodRank(t *testing.T) {
	ordered := []match.Method{
		match.MethodBarcode,
		match.MethodExact,
		match.MethodFuzzy,
		match.MethodEmbedding,
		match.MethodCategory,
		match.MethodManual,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank())
	}
	assert.False(t, match.Method("bogus").Valid())
}
