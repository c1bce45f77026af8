package match

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/logging"
)

// Queue receives listings the cascade could not resolve. Implemented by the
// review queue manager.
type Queue interface {
	// Enqueue upserts a queue entry for a listing with its best candidates
	Enqueue(listing catalogs.Listing, candidates []Candidate) error

	// Blocked reports whether a listing has a terminal queue entry that
	// should suppress automatic re-matching
	Blocked(listingRef string) bool

	// Settle closes a pending entry for a listing a re-run has since
	// matched, so stale entries cannot be resolved over a fresher result
	Settle(listingRef string)
}

// MethodStats aggregates results for one method within a batch run.
type MethodStats struct {
	Count          int
	MeanConfidence float64
	totalConf      float64
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	Total    int
	Matched  int
	Queued   int
	Skipped  int
	Failed   int
	ByMethod map[Method]*MethodStats
}

// MatchRate returns the fraction of processed listings that matched.
func (r *BatchReport) MatchRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Matched) / float64(r.Total)
}

func (r *BatchReport) record(result *Result) {
	r.Matched++
	stats, ok := r.ByMethod[result.Method]
	if !ok {
		stats = &MethodStats{}
		r.ByMethod[result.Method] = stats
	}
	stats.Count++
	stats.totalConf += result.Confidence
	stats.MeanConfidence = stats.totalConf / float64(stats.Count)
}

// Batch runs the cascade over many listings with a bounded worker pool.
// Workers share one immutable snapshot; the store and queue are the only
// write paths.
type Batch struct {
	cascade    *Cascade
	store      Store
	queue      Queue
	workers    int
	forceRetry bool
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithForceRetry re-runs listings whose queue entries are already terminal.
func WithForceRetry() BatchOption {
	return func(b *Batch) {
		b.forceRetry = true
	}
}

// NewBatch creates a batch runner.
func NewBatch(cascade *Cascade, store Store, queue Queue, opts ...BatchOption) *Batch {
	b := &Batch{
		cascade: cascade,
		store:   store,
		queue:   queue,
		workers: 8,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run matches every listing against the snapshot and returns the report.
// Listing-level failures are counted, not fatal; only context cancellation
// aborts the run.
func (b *Batch) Run(ctx context.Context, snap *catalogs.Snapshot, listings []catalogs.Listing) (*BatchReport, error) {
	log := logging.FromContext(ctx)
	report := &BatchReport{
		Total:    len(listings),
		ByMethod: make(map[Method]*MethodStats),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i := range listings {
		listing := listings[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if !b.forceRetry && b.queue != nil && b.queue.Blocked(listing.Ref()) {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}

			result, candidates, err := b.cascade.Match(gctx, snap, listing)
			switch {
			case err == nil:
				if err := b.store.Save(*result); err != nil {
					return err
				}
				if b.queue != nil {
					b.queue.Settle(listing.Ref())
				}
				mu.Lock()
				report.record(result)
				mu.Unlock()

			case errors.IsNoMatch(err):
				if b.queue != nil {
					if err := b.queue.Enqueue(listing, candidates); err != nil {
						return err
					}
				}
				mu.Lock()
				report.Queued++
				mu.Unlock()

			default:
				log.Warn().
					Str("listing", listing.Ref()).
					Err(err).
					Msg("listing failed")
				mu.Lock()
				report.Failed++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	log.Info().
		Int("total", report.Total).
		Int("matched", report.Matched).
		Int("queued", report.Queued).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("batch complete")
	return report, nil
}
