package shelfmatch

import (
	"github.com/shelfmatch/shelfmatch/pkg/arbiter"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/dedup"
	"github.com/shelfmatch/shelfmatch/pkg/embedding"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/shelfmatch/shelfmatch/pkg/review"
)

// Option is a function that configures a ShelfMatch instance.
type Option func(*config) error

// config holds the assembled dependencies and thresholds.
type config struct {
	initialCatalog catalogs.Catalog
	store          match.Store
	queue          *review.Manager
	matchConfig    match.Config
	dedupConfig    dedup.Config
	arbiter        arbiter.Arbiter
	embedder       embedding.Embedder
	workers        int
	forceRetry     bool
}

func defaultConfig() *config {
	return &config{
		matchConfig: match.DefaultConfig(),
		dedupConfig: dedup.DefaultConfig(),
		workers:     8,
	}
}

// WithInitialCatalog configures the catalog to resolve against.
func WithInitialCatalog(catalog catalogs.Catalog) Option {
	return func(c *config) error {
		if catalog == nil {
			return errors.NewValidationError("catalog", nil, "cannot be nil")
		}
		c.initialCatalog = catalog
		return nil
	}
}

// WithState injects pre-loaded result and queue state, typically read back
// from disk between CLI invocations. Either argument may be nil to keep the
// default empty state.
func WithState(store match.Store, queue *review.Manager) Option {
	return func(c *config) error {
		c.store = store
		c.queue = queue
		return nil
	}
}

// WithMatchConfig overrides the cascade thresholds.
func WithMatchConfig(cfg match.Config) Option {
	return func(c *config) error {
		c.matchConfig = cfg
		return nil
	}
}

// WithDedupConfig overrides the dedup thresholds.
func WithDedupConfig(cfg dedup.Config) Option {
	return func(c *config) error {
		c.dedupConfig = cfg
		return nil
	}
}

// WithArbiter enables the dedup engine with the given arbitration model.
func WithArbiter(arb arbiter.Arbiter) Option {
	return func(c *config) error {
		c.arbiter = arb
		return nil
	}
}

// WithEmbedder enables the cascade's semantic tier with the given embedder.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *config) error {
		c.embedder = e
		return nil
	}
}

// WithWorkers sets the batch matching worker pool size.
func WithWorkers(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return errors.NewValidationError("workers", n, "must be positive")
		}
		c.workers = n
		return nil
	}
}

// WithForceRetry re-matches listings whose review entries are already
// terminal instead of skipping them.
func WithForceRetry(enabled bool) Option {
	return func(c *config) error {
		c.forceRetry = enabled
		return nil
	}
}
