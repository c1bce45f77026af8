package dedup_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shelfmatch/shelfmatch/pkg/arbiter"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/dedup"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingArbiter returns a fixed verdict and counts calls.
type countingArbiter struct {
	mu      sync.Mutex
	calls   int
	verdict arbiter.Verdict
	err     error
}

func (c *countingArbiter) SameProduct(_ context.Context, _, _ arbiter.ProductInfo) (arbiter.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return arbiter.Verdict{}, c.err
	}
	return c.verdict, nil
}

func (c *countingArbiter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// failingStore delegates to an inner store but fails Save for chosen refs.
type failingStore struct {
	match.Store
	failRefs map[string]bool
}

func (s *failingStore) Save(result match.Result) error {
	if s.failRefs[result.ListingRef] {
		return errors.NewIOError("write", result.ListingRef, errors.ErrReadOnly)
	}
	return s.Store.Save(result)
}

func duplicateCatalog(t *testing.T) catalogs.Catalog {
	t.Helper()

	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:             "canon_rich",
		Name:           "Nivea Soft Cream 200ml Moisturizer",
		Brand:          "Nivea",
		Category:       "skin care",
		PrimaryBarcode: "4006381333931",
		ImageURL:       "https://img.example/rich.jpg",
	}))
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:                "canon_dup",
		Name:              "Nivea Soft Cream 200ml",
		SecondaryBarcodes: []string{"7290010945306"},
	}))
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:    "canon_other",
		Name:  "Total Toothpaste",
		Brand: "Colgate",
	}))
	return c
}

func TestScanMergesConfirmedDuplicates(t *testing.T) {
	catalog := duplicateCatalog(t)
	store := match.NewMemoryStore()
	require.NoError(t, store.Save(match.Result{
		ListingRef: "superpharm/1",
		ProductID:  "canon_dup",
		Method:     match.MethodFuzzy,
		Confidence: 0.9,
	}))

	arb := &countingArbiter{verdict: arbiter.Verdict{Same: true, Reason: "same cream"}}
	engine := dedup.NewEngine(catalog, store, arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	group := report.Groups[0]
	assert.Equal(t, catalogs.ProductID("canon_rich"), group.SurvivorID, "the member with an image survives")
	assert.Equal(t, []catalogs.ProductID{"canon_dup"}, group.MergedIDs)
	assert.Equal(t, 1, group.ListingsRewritten)
	assert.Equal(t, "same cream", group.Reason)

	// Loser removed, survivor absorbed its barcodes.
	_, err = catalog.Product("canon_dup")
	assert.True(t, errors.IsNotFound(err))
	survivor, err := catalog.Product("canon_rich")
	require.NoError(t, err)
	assert.Contains(t, survivor.SecondaryBarcodes, "7290010945306")

	// The loser's listing now points at the survivor.
	result, err := store.Get("superpharm/1")
	require.NoError(t, err)
	assert.Equal(t, catalogs.ProductID("canon_rich"), result.ProductID)
	assert.Equal(t, match.MethodFuzzy, result.Method, "merge preserves how the listing matched")

	// The unrelated product is untouched.
	_, err = catalog.Product("canon_other")
	assert.NoError(t, err)
}

func TestScanAttributeConflictShortCircuitsArbitration(t *testing.T) {
	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_250", Name: "Nivea Soft Cream 250ml", Brand: "Nivea"}))
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_500", Name: "Nivea Soft Cream 500ml", Brand: "Nivea"}))

	// Even an arbiter that always says yes must never see this pair.
	arb := &countingArbiter{verdict: arbiter.Verdict{Same: true}}
	engine := dedup.NewEngine(c, match.NewMemoryStore(), arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, arb.callCount())
	assert.Equal(t, 1, report.PairsFiltered["volume"])
	assert.Empty(t, report.Groups)
	_, err = c.Product("canon_250")
	assert.NoError(t, err)
	_, err = c.Product("canon_500")
	assert.NoError(t, err)
}

func TestScanDistinctVerdictDoesNotMerge(t *testing.T) {
	catalog := duplicateCatalog(t)
	arb := &countingArbiter{verdict: arbiter.Verdict{Same: false, Reason: "different formulations"}}
	engine := dedup.NewEngine(catalog, match.NewMemoryStore(), arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.PairsDistinct)
	assert.Empty(t, report.Groups)
	_, err = catalog.Product("canon_dup")
	assert.NoError(t, err)
}

func TestScanArbitrationFailureIsNeverAYes(t *testing.T) {
	catalog := duplicateCatalog(t)
	arb := &countingArbiter{err: errors.ErrTimeout}
	engine := dedup.NewEngine(catalog, match.NewMemoryStore(), arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Unresolved, 1)
	assert.Empty(t, report.Groups)
	_, err = catalog.Product("canon_dup")
	assert.NoError(t, err, "an unresolved pair leaves the catalog unchanged")
}

func TestScanCachesDefinitiveVerdictsOnly(t *testing.T) {
	catalog := duplicateCatalog(t)
	arb := &countingArbiter{verdict: arbiter.Verdict{Same: false}}
	engine := dedup.NewEngine(catalog, match.NewMemoryStore(), arb)

	first, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, arb.callCount())
	assert.Equal(t, 0, first.CacheHits)

	second, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, arb.callCount(), "a cached verdict is never re-arbitrated")
	assert.Equal(t, 1, second.CacheHits)
}

func TestScanVerdictCachePersistsAcrossEngines(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "verdicts.yaml")
	cfg := dedup.DefaultConfig()
	cfg.VerdictCachePath = cachePath

	first := &countingArbiter{verdict: arbiter.Verdict{Same: false}}
	engine := dedup.NewEngine(duplicateCatalog(t), match.NewMemoryStore(), first, dedup.WithConfig(cfg))
	_, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.callCount())

	// A fresh engine reads the verdict back instead of asking again.
	second := &countingArbiter{verdict: arbiter.Verdict{Same: true}}
	engine = dedup.NewEngine(duplicateCatalog(t), match.NewMemoryStore(), second, dedup.WithConfig(cfg))
	report, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.callCount())
	assert.Equal(t, 1, report.CacheHits)
	assert.Empty(t, report.Groups)
}

func TestScanFailedArbitrationIsRetriedNextScan(t *testing.T) {
	catalog := duplicateCatalog(t)
	arb := &countingArbiter{err: errors.ErrTimeout}
	engine := dedup.NewEngine(catalog, match.NewMemoryStore(), arb)

	_, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, arb.callCount())

	_, err = engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, arb.callCount(), "failures are not cached")
}

func TestScanMergeRollback(t *testing.T) {
	catalog := duplicateCatalog(t)

	inner := match.NewMemoryStore()
	require.NoError(t, inner.Save(match.Result{
		ListingRef: "superpharm/1",
		ProductID:  "canon_dup",
		Method:     match.MethodFuzzy,
		Confidence: 0.9,
	}))
	store := &failingStore{Store: inner, failRefs: map[string]bool{"superpharm/1": true}}

	arb := &countingArbiter{verdict: arbiter.Verdict{Same: true}}
	engine := dedup.NewEngine(catalog, store, arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err, "a failed merge is reported, not fatal")

	require.Len(t, report.FailedMerges, 1)
	assert.Empty(t, report.Groups)

	// Full rollback: both products back with their original barcodes, the
	// listing still points at the loser.
	dup, err := catalog.Product("canon_dup")
	require.NoError(t, err)
	assert.Equal(t, []string{"7290010945306"}, dup.SecondaryBarcodes)

	rich, err := catalog.Product("canon_rich")
	require.NoError(t, err)
	assert.NotContains(t, rich.SecondaryBarcodes, "7290010945306")

	result, err := inner.Get("superpharm/1")
	require.NoError(t, err)
	assert.Equal(t, catalogs.ProductID("canon_dup"), result.ProductID)
}

func TestScanTransitiveCluster(t *testing.T) {
	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_a", Name: "Nivea Soft Cream 200ml", Brand: "Nivea", ImageURL: "https://img.example/a.jpg"}))
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_b", Name: "Nivea Soft Cream 200ml"}))
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_c", Name: "Nivea Soft Cream 200ml Lotion"}))

	arb := &countingArbiter{verdict: arbiter.Verdict{Same: true}}
	engine := dedup.NewEngine(c, match.NewMemoryStore(), arb)

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	group := report.Groups[0]
	assert.Equal(t, catalogs.ProductID("canon_a"), group.SurvivorID)
	assert.ElementsMatch(t, []catalogs.ProductID{"canon_b", "canon_c"}, group.MergedIDs)
	assert.Equal(t, 1, c.Products().Len())
}

func TestScanRequiresArbiter(t *testing.T) {
	engine := dedup.NewEngine(catalogs.New(), match.NewMemoryStore(), nil)
	_, err := engine.Scan(context.Background())
	assert.Error(t, err)
}
