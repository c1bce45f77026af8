package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfmatch/shelfmatch"
	"github.com/shelfmatch/shelfmatch/internal/config"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/embedding"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/shelfmatch/shelfmatch/pkg/review"
)

var (
	matchCatalogPath string
	matchResultsPath string
	matchQueuePath   string
	matchWorkers     int
	matchForceRetry  bool
	matchSemantic    bool
)

var matchCmd = &cobra.Command{
	Use:   "match <listings.yaml>",
	Short: "Resolve retailer listings against the canonical catalog",
	Long: `Match runs the resolution cascade over a listings export. Accepted
matches are appended to the results file; unresolved listings land in the
review queue file with their best candidates.

With --semantic the cascade adds an embedding tier, which requires
GEMINI_API_KEY (or GOOGLE_API_KEY).`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&matchCatalogPath, "catalog", "catalog.yaml", "canonical catalog file")
	matchCmd.Flags().StringVar(&matchResultsPath, "results", "results.yaml", "match results file")
	matchCmd.Flags().StringVar(&matchQueuePath, "queue", "queue.yaml", "review queue file")
	matchCmd.Flags().IntVar(&matchWorkers, "workers", 8, "concurrent matching workers")
	matchCmd.Flags().BoolVar(&matchForceRetry, "force-retry", false, "re-match listings with terminal queue entries")
	matchCmd.Flags().BoolVar(&matchSemantic, "semantic", false, "enable the embedding tier")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog, err := catalogs.LoadCatalog(matchCatalogPath)
	if err != nil {
		return err
	}
	listings, err := catalogs.LoadListings(args[0])
	if err != nil {
		return err
	}

	store, err := loadResultsOrEmpty(matchResultsPath)
	if err != nil {
		return err
	}
	queue, err := loadQueueOrEmpty(matchQueuePath)
	if err != nil {
		return err
	}

	opts := []shelfmatch.Option{
		shelfmatch.WithInitialCatalog(catalog),
		shelfmatch.WithMatchConfig(config.MatchConfig()),
		shelfmatch.WithWorkers(matchWorkers),
		shelfmatch.WithForceRetry(matchForceRetry),
	}
	if matchSemantic {
		apiKey, err := config.RequireGeminiAPIKey()
		if err != nil {
			return err
		}
		embedder, err := embedding.NewGemini(ctx, apiKey)
		if err != nil {
			return err
		}
		opts = append(opts, shelfmatch.WithEmbedder(embedder))
	}

	sm, err := newEngine(store, queue, opts...)
	if err != nil {
		return err
	}
	if matchSemantic {
		if err := sm.RefreshIndex(ctx); err != nil {
			return err
		}
	}

	report, err := sm.MatchAll(ctx, listings)
	if err != nil {
		return err
	}

	if err := match.SaveResults(matchResultsPath, sm.Results()); err != nil {
		return err
	}
	if err := review.SaveManager(matchQueuePath, sm.Queue()); err != nil {
		return err
	}

	printBatchReport(cmd, report)
	return nil
}

func printBatchReport(cmd *cobra.Command, report *match.BatchReport) {
	cmd.Printf("Matched  %d/%d (%.1f%%)\n", report.Matched, report.Total, report.MatchRate()*100)
	cmd.Printf("Queued   %d\n", report.Queued)
	cmd.Printf("Skipped  %d\n", report.Skipped)
	cmd.Printf("Failed   %d\n", report.Failed)
	for _, method := range []match.Method{
		match.MethodBarcode,
		match.MethodExact,
		match.MethodFuzzy,
		match.MethodEmbedding,
		match.MethodCategory,
	} {
		if stats, ok := report.ByMethod[method]; ok {
			cmd.Printf("  %-18s %4d (mean confidence %.2f)\n", method, stats.Count, stats.MeanConfidence)
		}
	}
}

// loadResultsOrEmpty reads the results file, treating a missing file as an
// empty store so first runs need no setup.
func loadResultsOrEmpty(path string) (match.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return match.NewMemoryStore(), nil
	}
	return match.LoadResults(path)
}

// loadQueueOrEmpty reads the queue file, treating a missing file as an
// empty queue.
func loadQueueOrEmpty(path string) (*review.Manager, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return review.NewManager(), nil
	}
	return review.LoadManager(path)
}

// newEngine builds the facade around pre-loaded state files.
func newEngine(store match.Store, queue *review.Manager, opts ...shelfmatch.Option) (shelfmatch.ShelfMatch, error) {
	sm, err := shelfmatch.New(append(opts, shelfmatch.WithState(store, queue))...)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	return sm, nil
}
