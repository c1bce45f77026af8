// Package shelfmatch resolves retailer product listings to canonical catalog
// products. It wires the matching cascade, the manual review queue, and the
// dedup engine behind one facade so embedders only deal with listings in and
// results out.
package shelfmatch

import (
	"context"
	"sync"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/dedup"
	"github.com/shelfmatch/shelfmatch/pkg/embedding"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/shelfmatch/shelfmatch/pkg/review"
)

// ShelfMatch is the resolution engine facade.
type ShelfMatch interface {
	// Catalog returns a copy of the current canonical catalog
	Catalog() (catalogs.Catalog, error)

	// Match resolves one listing against the current catalog
	Match(ctx context.Context, listing catalogs.Listing) (*match.Result, []match.Candidate, error)

	// MatchAll resolves many listings concurrently, persisting results and
	// queueing unresolved listings for review
	MatchAll(ctx context.Context, listings []catalogs.Listing) (*match.BatchReport, error)

	// Resolve settles a review queue entry and persists the outcome
	Resolve(ctx context.Context, listingRef string, productID catalogs.ProductID, method match.Method) (*match.Result, error)

	// Dedup scans the catalog for duplicate canonical products and merges
	// confirmed groups
	Dedup(ctx context.Context) (*dedup.Report, error)

	// RefreshIndex rebuilds the semantic index from the current catalog
	RefreshIndex(ctx context.Context) error

	// Queue exposes the manual review queue
	Queue() *review.Manager

	// Results exposes the persisted listing-to-canonical mappings
	Results() match.Store
}

// shelfmatch is the internal implementation of the ShelfMatch interface.
type shelfmatch struct {
	// mu serializes dedup merges against matching writes: matchers and
	// resolvers share the read side, a dedup scan takes the write side, so
	// no result can be saved against a product mid-merge.
	mu      sync.RWMutex
	config  *config
	catalog catalogs.Catalog
	store   match.Store
	queue   *review.Manager
	cascade *match.Cascade
	index   *embedding.Index
	engine  *dedup.Engine
}

// New creates a ShelfMatch instance with the given options.
func New(opts ...Option) (ShelfMatch, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	sm := &shelfmatch{
		config: cfg,
		store:  cfg.store,
		queue:  cfg.queue,
	}
	if sm.store == nil {
		sm.store = match.NewMemoryStore()
	}
	if sm.queue == nil {
		sm.queue = review.NewManager()
	}

	if cfg.initialCatalog != nil {
		sm.catalog = cfg.initialCatalog
	} else {
		sm.catalog = catalogs.New()
	}

	cascadeOpts := []match.CascadeOption{match.WithConfig(cfg.matchConfig)}
	if cfg.embedder != nil {
		sm.index = embedding.NewIndex(cfg.embedder)
		cascadeOpts = append(cascadeOpts, match.WithSemanticIndex(sm.index))
	}
	sm.cascade = match.NewCascade(cascadeOpts...)

	if cfg.arbiter != nil {
		sm.engine = dedup.NewEngine(sm.catalog, sm.store, cfg.arbiter, dedup.WithConfig(cfg.dedupConfig))
	}

	return sm, nil
}

// Catalog returns a copy of the current catalog.
func (s *shelfmatch) Catalog() (catalogs.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Copy()
}

// Match resolves one listing. Nothing is persisted; use MatchAll or Resolve
// for durable outcomes.
func (s *shelfmatch) Match(ctx context.Context, listing catalogs.Listing) (*match.Result, []match.Candidate, error) {
	s.mu.RLock()
	snap := catalogs.NewSnapshot(s.catalog)
	s.mu.RUnlock()

	return s.cascade.Match(ctx, snap, listing)
}

// MatchAll resolves many listings against one consistent snapshot. The lock
// is held read-side for the whole run so a concurrent dedup merge cannot
// delete a product between a worker's match and its save.
func (s *shelfmatch) MatchAll(ctx context.Context, listings []catalogs.Listing) (*match.BatchReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := catalogs.NewSnapshot(s.catalog)
	batchOpts := []match.BatchOption{match.WithWorkers(s.config.workers)}
	if s.config.forceRetry {
		batchOpts = append(batchOpts, match.WithForceRetry())
	}
	batch := match.NewBatch(s.cascade, s.store, s.queue, batchOpts...)
	return batch.Run(ctx, snap, listings)
}

// Resolve settles a queue entry. A non-empty product resolution is persisted
// to the result store; marking an entry failed persists nothing.
func (s *shelfmatch) Resolve(_ context.Context, listingRef string, productID catalogs.ProductID, method match.Method) (*match.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, err := s.queue.Resolve(listingRef, productID, method)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	if err := s.store.Save(*result); err != nil {
		return nil, err
	}
	return result, nil
}

// Dedup runs one dedup scan over the catalog. The scan holds the write side
// of the lock so no match or resolution can land on a product while its
// group is being merged.
func (s *shelfmatch) Dedup(ctx context.Context) (*dedup.Report, error) {
	if s.engine == nil {
		return nil, errors.NewConfigError("shelfmatch", "dedup requires an arbiter; use WithArbiter", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Scan(ctx)
}

// RefreshIndex rebuilds the semantic index from the current catalog.
func (s *shelfmatch) RefreshIndex(ctx context.Context) error {
	if s.index == nil {
		return errors.NewConfigError("shelfmatch", "semantic index requires an embedder; use WithEmbedder", nil)
	}

	s.mu.RLock()
	snap := catalogs.NewSnapshot(s.catalog)
	s.mu.RUnlock()

	return s.index.Build(ctx, snap)
}

// Queue exposes the manual review queue.
func (s *shelfmatch) Queue() *review.Manager {
	return s.queue
}

// Results exposes the persisted match results.
func (s *shelfmatch) Results() match.Store {
	return s.store
}
