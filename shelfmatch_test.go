package shelfmatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shelfmatch/shelfmatch"
	"github.com/shelfmatch/shelfmatch/pkg/arbiter"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/shelfmatch/shelfmatch/pkg/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facadeCatalog(t *testing.T) catalogs.Catalog {
	t.Helper()

	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:             "canon_4006381333931",
		Name:           "Advil Liqui-Gels 200mg",
		Brand:          "Advil",
		PrimaryBarcode: "4006381333931",
	}))
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:    "canon_colgate",
		Name:  "Total Toothpaste",
		Brand: "Colgate",
	}))
	return c
}

func TestFacadeMatch(t *testing.T) {
	sm, err := shelfmatch.New(shelfmatch.WithInitialCatalog(facadeCatalog(t)))
	require.NoError(t, err)

	result, _, err := sm.Match(context.Background(), catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "1",
		RawName:    "anything",
		Barcode:    "4006381333931",
	})
	require.NoError(t, err)
	assert.Equal(t, match.MethodBarcode, result.Method)

	// Single match does not persist.
	assert.Equal(t, 0, sm.Results().Len())
}

func TestFacadeMatchAllAndResolve(t *testing.T) {
	sm, err := shelfmatch.New(shelfmatch.WithInitialCatalog(facadeCatalog(t)))
	require.NoError(t, err)

	listings := []catalogs.Listing{
		{RetailerID: "superpharm", ItemCode: "1", RawName: "x", Barcode: "4006381333931"},
		{RetailerID: "superpharm", ItemCode: "2", RawName: "unknown mystery item"},
	}

	report, err := sm.MatchAll(context.Background(), listings)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 1, sm.Results().Len())
	assert.Equal(t, 1, len(sm.Queue().Pending()))

	// Manual resolution lands in the result store.
	result, err := sm.Resolve(context.Background(), "superpharm/2", "canon_colgate", match.MethodManual)
	require.NoError(t, err)
	assert.Equal(t, match.ManualConfidence, result.Confidence)

	stored, err := sm.Results().Get("superpharm/2")
	require.NoError(t, err)
	assert.Equal(t, catalogs.ProductID("canon_colgate"), stored.ProductID)
}

func TestFacadeResolveFailedPersistsNothing(t *testing.T) {
	sm, err := shelfmatch.New(shelfmatch.WithInitialCatalog(facadeCatalog(t)))
	require.NoError(t, err)

	_, err = sm.MatchAll(context.Background(), []catalogs.Listing{
		{RetailerID: "superpharm", ItemCode: "9", RawName: "unknown mystery item"},
	})
	require.NoError(t, err)

	result, err := sm.Resolve(context.Background(), "superpharm/9", "", match.MethodManual)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, sm.Results().Len())

	// Failed entries block subsequent runs.
	report, err := sm.MatchAll(context.Background(), []catalogs.Listing{
		{RetailerID: "superpharm", ItemCode: "9", RawName: "unknown mystery item"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
}

func TestFacadeRematchSettlesQueueEntry(t *testing.T) {
	c := catalogs.New()
	sm, err := shelfmatch.New(shelfmatch.WithInitialCatalog(c))
	require.NoError(t, err)

	listing := catalogs.Listing{
		RetailerID: "superpharm",
		ItemCode:   "5",
		RawName:    "Advil Liqui-Gels",
		Barcode:    "4006381333931",
	}

	report, err := sm.MatchAll(context.Background(), []catalogs.Listing{listing})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)

	// Improved data arrives: the product now exists, the re-run matches.
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:             "canon_4006381333931",
		Name:           "Advil Liqui-Gels 200mg",
		Brand:          "Advil",
		PrimaryBarcode: "4006381333931",
	}))

	report, err = sm.MatchAll(context.Background(), []catalogs.Listing{listing})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)

	stored, err := sm.Results().Get(listing.Ref())
	require.NoError(t, err)
	assert.Equal(t, catalogs.ProductID("canon_4006381333931"), stored.ProductID)

	// The stale entry is closed, not left for a reviewer to overwrite.
	entry, err := sm.Queue().Get(listing.Ref())
	require.NoError(t, err)
	assert.Equal(t, review.StatusMatched, entry.Status)
	assert.Empty(t, sm.Queue().Pending())
}

func TestFacadeDedupRequiresArbiter(t *testing.T) {
	sm, err := shelfmatch.New()
	require.NoError(t, err)

	_, err = sm.Dedup(context.Background())
	assert.Error(t, err)
}

func TestFacadeDedup(t *testing.T) {
	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_a", Name: "Nivea Soft Cream 200ml", Brand: "Nivea", ImageURL: "https://img.example/a.jpg"}))
	require.NoError(t, c.SetProduct(catalogs.Product{ID: "canon_b", Name: "Nivea Soft Cream 200ml"}))

	yes := arbiter.Func(func(_ context.Context, _, _ arbiter.ProductInfo) (arbiter.Verdict, error) {
		return arbiter.Verdict{Same: true}, nil
	})

	sm, err := shelfmatch.New(
		shelfmatch.WithInitialCatalog(c),
		shelfmatch.WithArbiter(yes),
	)
	require.NoError(t, err)

	report, err := sm.Dedup(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, catalogs.ProductID("canon_a"), report.Groups[0].SurvivorID)

	catalog, err := sm.Catalog()
	require.NoError(t, err)
	_, err = catalog.Product("canon_b")
	assert.True(t, errors.IsNotFound(err))
}

// gatedArbiter blocks its first call until released so a test can hold a
// dedup scan open.
type gatedArbiter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedArbiter) SameProduct(_ context.Context, _, _ arbiter.ProductInfo) (arbiter.Verdict, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return arbiter.Verdict{Same: true, Reason: "same product"}, nil
}

func TestFacadeDedupBlocksConcurrentMatching(t *testing.T) {
	c := catalogs.New()
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:       "canon_a",
		Name:     "Nivea Soft Cream 200ml",
		Brand:    "Nivea",
		ImageURL: "https://img.example/a.jpg",
	}))
	require.NoError(t, c.SetProduct(catalogs.Product{
		ID:             "canon_b",
		Name:           "Nivea Soft Cream 200ml",
		PrimaryBarcode: "7290010945306",
	}))

	arb := &gatedArbiter{started: make(chan struct{}), release: make(chan struct{})}
	sm, err := shelfmatch.New(
		shelfmatch.WithInitialCatalog(c),
		shelfmatch.WithArbiter(arb),
	)
	require.NoError(t, err)

	dedupDone := make(chan error, 1)
	go func() {
		_, err := sm.Dedup(context.Background())
		dedupDone <- err
	}()
	<-arb.started

	listings := []catalogs.Listing{
		{RetailerID: "superpharm", ItemCode: "1", RawName: "nivea cream", Barcode: "7290010945306"},
	}
	matchDone := make(chan *match.BatchReport, 1)
	matchErr := make(chan error, 1)
	go func() {
		report, err := sm.MatchAll(context.Background(), listings)
		matchErr <- err
		matchDone <- report
	}()

	select {
	case <-matchDone:
		t.Fatal("matching ran while a dedup scan held the catalog")
	case <-time.After(50 * time.Millisecond):
	}

	close(arb.release)
	require.NoError(t, <-dedupDone)
	require.NoError(t, <-matchErr)
	report := <-matchDone
	assert.Equal(t, 1, report.Matched)

	// The deferred run sees the post-merge catalog: the result points at the
	// survivor, never at the deleted loser.
	stored, err := sm.Results().Get("superpharm/1")
	require.NoError(t, err)
	assert.Equal(t, catalogs.ProductID("canon_a"), stored.ProductID)
}

func TestFacadeRefreshIndexRequiresEmbedder(t *testing.T) {
	sm, err := shelfmatch.New()
	require.NoError(t, err)
	assert.Error(t, sm.RefreshIndex(context.Background()))
}

func TestFacadeCatalogReturnsCopy(t *testing.T) {
	sm, err := shelfmatch.New(shelfmatch.WithInitialCatalog(facadeCatalog(t)))
	require.NoError(t, err)

	copy1, err := sm.Catalog()
	require.NoError(t, err)
	require.NoError(t, copy1.DeleteProduct("canon_colgate"))

	copy2, err := sm.Catalog()
	require.NoError(t, err)
	_, err = copy2.Product("canon_colgate")
	assert.NoError(t, err, "mutating a returned copy must not touch the live catalog")
}

func TestFacadeOptionValidation(t *testing.T) {
	_, err := shelfmatch.New(shelfmatch.WithWorkers(0))
	assert.Error(t, err)

	_, err = shelfmatch.New(shelfmatch.WithInitialCatalog(nil))
	assert.Error(t, err)
}
