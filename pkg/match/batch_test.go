package match_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue records enqueued and settled listings and reports a fixed
// blocked set.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued map[string][]match.Candidate
	settled  map[string]bool
	blocked  map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		enqueued: make(map[string][]match.Candidate),
		settled:  make(map[string]bool),
		blocked:  make(map[string]bool),
	}
}

func (q *fakeQueue) Enqueue(listing catalogs.Listing, candidates []match.Candidate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued[listing.Ref()] = candidates
	return nil
}

func (q *fakeQueue) Settle(listingRef string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled[listingRef] = true
}

func (q *fakeQueue) Blocked(listingRef string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blocked[listingRef]
}

func batchListings() []catalogs.Listing {
	return []catalogs.Listing{
		// Barcode hit.
		{RetailerID: "superpharm", ItemCode: "1", RawName: "whatever", Barcode: "4006381333931"},
		// Exact hit.
		{RetailerID: "superpharm", ItemCode: "2", RawName: "total toothpaste", RawBrand: "Colgate"},
		// No tier accepts: queued.
		{RetailerID: "superpharm", ItemCode: "3", RawName: "mystery item qqq"},
	}
}

func TestBatchRun(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	queue := newFakeQueue()
	batch := match.NewBatch(match.NewCascade(), store, queue, match.WithWorkers(4))

	report, err := batch.Run(context.Background(), snap, batchListings())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.InDelta(t, 2.0/3.0, report.MatchRate(), 1e-9)

	// Results persisted for the matched listings only.
	assert.Equal(t, 2, store.Len())
	result, err := store.Get("superpharm/1")
	require.NoError(t, err)
	assert.Equal(t, match.MethodBarcode, result.Method)

	// The unresolved listing reached the queue.
	_, ok := queue.enqueued["superpharm/3"]
	assert.True(t, ok)

	// Matched listings settle any pending entry they may have.
	assert.True(t, queue.settled["superpharm/1"])
	assert.True(t, queue.settled["superpharm/2"])
	assert.False(t, queue.settled["superpharm/3"])
}

func TestBatchMethodStats(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	batch := match.NewBatch(match.NewCascade(), store, newFakeQueue())

	report, err := batch.Run(context.Background(), snap, batchListings())
	require.NoError(t, err)

	require.Contains(t, report.ByMethod, match.MethodBarcode)
	require.Contains(t, report.ByMethod, match.MethodExact)
	assert.Equal(t, 1, report.ByMethod[match.MethodBarcode].Count)
	assert.Equal(t, 1.0, report.ByMethod[match.MethodBarcode].MeanConfidence)
	assert.Equal(t, 0.95, report.ByMethod[match.MethodExact].MeanConfidence)
}

func TestBatchSkipsBlockedListings(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	queue := newFakeQueue()
	queue.blocked["superpharm/1"] = true

	batch := match.NewBatch(match.NewCascade(), store, queue)
	report, err := batch.Run(context.Background(), snap, batchListings())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Matched)
	_, err = store.Get("superpharm/1")
	assert.Error(t, err, "blocked listing must not be re-matched")
}

func TestBatchForceRetry(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	queue := newFakeQueue()
	queue.blocked["superpharm/1"] = true

	batch := match.NewBatch(match.NewCascade(), store, queue, match.WithForceRetry())
	report, err := batch.Run(context.Background(), snap, batchListings())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 2, report.Matched)
	_, err = store.Get("superpharm/1")
	assert.NoError(t, err)
}

func TestBatchCountsListingFailures(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	batch := match.NewBatch(match.NewCascade(), store, newFakeQueue())

	listings := append(batchListings(), catalogs.Listing{RetailerID: "superpharm"})
	report, err := batch.Run(context.Background(), snap, listings)
	require.NoError(t, err, "a bad listing is counted, not fatal")

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Matched)
}

func TestBatchContextCancellation(t *testing.T) {
	snap := cascadeSnapshot(t)
	store := match.NewMemoryStore()
	batch := match.NewBatch(match.NewCascade(), store, newFakeQueue(), match.WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := batch.Run(ctx, snap, batchListings())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchEmptyInput(t *testing.T) {
	snap := cascadeSnapshot(t)
	batch := match.NewBatch(match.NewCascade(), match.NewMemoryStore(), newFakeQueue())

	report, err := batch.Run(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0.0, report.MatchRate())
}
