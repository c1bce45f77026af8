package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfmatch/shelfmatch/pkg/arbiter"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/logging"
	"github.com/shelfmatch/shelfmatch/pkg/match"
)

// Config holds the dedup engine thresholds.
type Config struct {
	// JaccardThreshold is the minimum token overlap a pair needs to reach
	// arbitration.
	JaccardThreshold float64
	// Workers bounds concurrent arbitration calls.
	Workers int
	// MaxTokenBucket skips blocking tokens shared by more products than this.
	MaxTokenBucket int
	// VerdictCachePath persists definitive arbitration answers between scans.
	// Empty keeps the cache in memory only.
	VerdictCachePath string
}

// DefaultConfig returns the standard dedup thresholds.
func DefaultConfig() Config {
	return Config{
		JaccardThreshold: 0.75,
		Workers:          4,
		MaxTokenBucket:   150,
	}
}

// Engine scans the catalog for duplicate canonical products and merges
// confirmed groups transactionally.
type Engine struct {
	catalog catalogs.Catalog
	store   match.Store
	arb     arbiter.Arbiter
	cfg     Config
	filter  *Filter
	cache   *verdictCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.JaccardThreshold > 0 {
			e.cfg.JaccardThreshold = cfg.JaccardThreshold
		}
		if cfg.Workers > 0 {
			e.cfg.Workers = cfg.Workers
		}
		if cfg.MaxTokenBucket > 0 {
			e.cfg.MaxTokenBucket = cfg.MaxTokenBucket
		}
		if cfg.VerdictCachePath != "" {
			e.cfg.VerdictCachePath = cfg.VerdictCachePath
		}
	}
}

// NewEngine creates a dedup engine over a catalog and its match store.
func NewEngine(catalog catalogs.Catalog, store match.Store, arb arbiter.Arbiter, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		arb:     arb,
		cfg:     DefaultConfig(),
		cache:   newVerdictCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.filter = NewFilter(e.cfg.JaccardThreshold)
	return e
}

// Scan runs one full dedup pass: block, filter, arbitrate, cluster, merge.
// The filter pass completes before the first arbitration call, so a pair a
// filter rejects can never reach the model. Merge failures roll back and are
// recorded in the report rather than aborting the scan.
func (e *Engine) Scan(ctx context.Context) (*Report, error) {
	if e.arb == nil {
		return nil, errors.NewConfigError("dedup", "arbiter not configured", nil)
	}

	log := logging.FromContext(ctx)
	report := newReport()

	if e.cfg.VerdictCachePath != "" {
		if err := e.loadVerdicts(e.cfg.VerdictCachePath); err != nil {
			return nil, err
		}
	}

	products := catalogs.NewSnapshot(e.catalog).Products()
	byID := make(map[catalogs.ProductID]*catalogs.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	pairs := candidatePairs(products, e.cfg.MaxTokenBucket)
	report.PairsConsidered = len(pairs)

	survivors := make([]pair, 0, len(pairs))
	for _, p := range pairs {
		if reason, rejected := e.filter.Check(byID[p.left], byID[p.right]); rejected {
			report.PairsFiltered[reason]++
			continue
		}
		survivors = append(survivors, p)
	}

	samePairs, reasons, err := e.arbitrate(ctx, survivors, byID, report)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	if e.cfg.VerdictCachePath != "" {
		if err := e.saveVerdicts(e.cfg.VerdictCachePath); err != nil {
			return nil, err
		}
	}

	for _, members := range clusterPairs(samePairs) {
		group := make([]catalogs.Product, 0, len(members))
		for _, id := range members {
			group = append(group, *byID[id])
		}

		survivor := chooseSurvivor(group)
		losers := make([]catalogs.Product, 0, len(group)-1)
		for _, p := range group {
			if p.ID != survivor.ID {
				losers = append(losers, p)
			}
		}

		rewritten, err := e.merge(ctx, survivor, losers)
		if err != nil {
			log.Error().
				Str("survivor", survivor.ID.String()).
				Err(err).
				Msg("merge rolled back")
			report.FailedMerges = append(report.FailedMerges, FailedMerge{
				SurvivorID: survivor.ID,
				MemberIDs:  members,
				Reason:     err.Error(),
			})
			continue
		}

		report.Groups = append(report.Groups, MergedGroup{
			SurvivorID:        survivor.ID,
			MergedIDs:         productIDs(losers),
			ListingsRewritten: rewritten,
			Reason:            groupReason(members, samePairs, reasons),
		})
	}

	report.FinishedAt = time.Now()
	log.Info().
		Int("pairs", report.PairsConsidered).
		Int("filtered", report.FilteredTotal()).
		Int("arbitrated", report.PairsArbitrated).
		Int("groups", len(report.Groups)).
		Int("merged_products", report.MergedProducts()).
		Msg("dedup scan complete")
	return report, nil
}

// arbitrate fans surviving pairs out to the arbiter with a bounded pool.
// Cached verdicts short-circuit; failed calls are recorded as unresolved and
// never counted as a yes.
func (e *Engine) arbitrate(ctx context.Context, pairs []pair, byID map[catalogs.ProductID]*catalogs.Product, report *Report) ([]pair, map[pair]string, error) {
	var mu sync.Mutex
	var same []pair
	reasons := make(map[pair]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if cached, ok := e.cache.get(p); ok {
				mu.Lock()
				report.CacheHits++
				if cached {
					same = append(same, p)
					reasons[p] = "previously confirmed"
					report.PairsSame++
				} else {
					report.PairsDistinct++
				}
				mu.Unlock()
				return nil
			}

			verdict, err := e.arb.SameProduct(gctx, productInfo(byID[p.left]), productInfo(byID[p.right]))

			mu.Lock()
			defer mu.Unlock()
			report.PairsArbitrated++
			if err != nil {
				report.Unresolved = append(report.Unresolved, UnresolvedPair{
					LeftID:  p.left,
					RightID: p.right,
					Reason:  err.Error(),
				})
				return nil
			}

			e.cache.put(p, verdict.Same)
			if verdict.Same {
				same = append(same, p)
				reasons[p] = verdict.Reason
				report.PairsSame++
			} else {
				report.PairsDistinct++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(same, func(i, j int) bool {
		if same[i].left != same[j].left {
			return same[i].left < same[j].left
		}
		return same[i].right < same[j].right
	})
	return same, reasons, nil
}

// groupReason picks the first recorded verdict reason among a cluster's
// internal pairs.
func groupReason(members []catalogs.ProductID, pairs []pair, reasons map[pair]string) string {
	set := make(map[catalogs.ProductID]bool, len(members))
	for _, id := range members {
		set[id] = true
	}
	for _, p := range pairs {
		if set[p.left] && set[p.right] {
			if r := reasons[p]; r != "" {
				return r
			}
		}
	}
	return ""
}

// merge folds losers into the survivor as one transaction: losers are
// removed, the survivor absorbs their barcodes and missing fields, and their
// listings are rewritten. Any failure restores every applied step and
// returns a MergeError.
func (e *Engine) merge(ctx context.Context, survivor catalogs.Product, losers []catalogs.Product) (int, error) {
	log := logging.FromContext(ctx)
	loserIDs := make([]string, 0, len(losers))
	for _, p := range losers {
		loserIDs = append(loserIDs, p.ID.String())
	}

	originalSurvivor, err := e.catalog.Product(survivor.ID)
	if err != nil {
		return 0, errors.NewMergeError(survivor.ID.String(), loserIDs, err)
	}

	var (
		deleted     []catalogs.Product
		rewritten   []match.Result
		survivorSet bool
	)

	rollback := func() {
		for _, r := range rewritten {
			if err := e.store.Save(r); err != nil {
				log.Error().Str("listing", r.ListingRef).Err(err).Msg("rollback: restore result failed")
			}
		}
		if survivorSet {
			if err := e.catalog.SetProduct(originalSurvivor); err != nil {
				log.Error().Str("product", originalSurvivor.ID.String()).Err(err).Msg("rollback: restore survivor failed")
			}
		}
		for _, p := range deleted {
			if err := e.catalog.SetProduct(p); err != nil {
				log.Error().Str("product", p.ID.String()).Err(err).Msg("rollback: restore product failed")
			}
		}
	}

	for _, loser := range losers {
		original, err := e.catalog.Product(loser.ID)
		if err == nil {
			err = e.catalog.DeleteProduct(loser.ID)
		}
		if err != nil {
			rollback()
			return 0, errors.NewMergeError(survivor.ID.String(), loserIDs, err)
		}
		deleted = append(deleted, original)
	}

	if err := e.catalog.SetProduct(buildSurvivor(originalSurvivor, losers)); err != nil {
		rollback()
		return 0, errors.NewMergeError(survivor.ID.String(), loserIDs, err)
	}
	survivorSet = true

	count := 0
	for _, loser := range losers {
		for _, result := range e.store.ByProduct(loser.ID.String()) {
			original := result
			result.ProductID = survivor.ID
			if err := e.store.Save(result); err != nil {
				rollback()
				return 0, errors.NewMergeError(survivor.ID.String(), loserIDs, err)
			}
			rewritten = append(rewritten, original)
			count++
		}
	}

	log.Info().
		Str("survivor", survivor.ID.String()).
		Strs("merged", loserIDs).
		Int("listings_rewritten", count).
		Msg("merged duplicate products")
	return count, nil
}

// buildSurvivor folds loser barcodes and missing fields into the survivor.
// The survivor's own values always win.
func buildSurvivor(survivor catalogs.Product, losers []catalogs.Product) catalogs.Product {
	updated := survivor.Clone()
	for _, loser := range losers {
		for _, code := range loser.Barcodes() {
			if !updated.HasBarcode(code) {
				updated.SecondaryBarcodes = append(updated.SecondaryBarcodes, code)
			}
		}
		if updated.Brand == "" {
			updated.Brand = loser.Brand
		}
		if updated.Category == "" {
			updated.Category = loser.Category
		}
		if updated.ImageURL == "" {
			updated.ImageURL = loser.ImageURL
		}
		for k, v := range loser.Attributes {
			if updated.Attributes == nil {
				updated.Attributes = make(map[string]string)
			}
			if _, ok := updated.Attributes[k]; !ok {
				updated.Attributes[k] = v
			}
		}
	}
	return updated
}

// clusterPairs groups same-product pairs into connected components via BFS.
// Members and clusters are sorted for deterministic merge order.
func clusterPairs(pairs []pair) [][]catalogs.ProductID {
	adjacency := make(map[catalogs.ProductID][]catalogs.ProductID)
	for _, p := range pairs {
		adjacency[p.left] = append(adjacency[p.left], p.right)
		adjacency[p.right] = append(adjacency[p.right], p.left)
	}

	nodes := make([]catalogs.ProductID, 0, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	visited := make(map[catalogs.ProductID]bool, len(nodes))
	var clusters [][]catalogs.ProductID
	for _, start := range nodes {
		if visited[start] {
			continue
		}

		var members []catalogs.ProductID
		queue := []catalogs.ProductID{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			members = append(members, id)
			for _, next := range adjacency[id] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}

		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		clusters = append(clusters, members)
	}
	return clusters
}

// chooseSurvivor picks the richest member of a cluster: an image beats no
// image, then a brand beats no brand, then the longest name wins. Ties fall
// back to the smallest ID.
func chooseSurvivor(members []catalogs.Product) catalogs.Product {
	best := members[0]
	for _, p := range members[1:] {
		if richer(&p, &best) {
			best = p
		}
	}
	return best
}

func richer(a, b *catalogs.Product) bool {
	if (a.ImageURL != "") != (b.ImageURL != "") {
		return a.ImageURL != ""
	}
	if (a.Brand != "") != (b.Brand != "") {
		return a.Brand != ""
	}
	if len(a.Name) != len(b.Name) {
		return len(a.Name) > len(b.Name)
	}
	return a.ID < b.ID
}

func productIDs(products []catalogs.Product) []catalogs.ProductID {
	ids := make([]catalogs.ProductID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func productInfo(p *catalogs.Product) arbiter.ProductInfo {
	return arbiter.ProductInfo{
		ID:       p.ID.String(),
		Name:     p.Name,
		Brand:    p.Brand,
		Category: p.Category,
		Barcode:  p.PrimaryBarcode,
	}
}
