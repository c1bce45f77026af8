package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelfmatch/shelfmatch"
	"github.com/shelfmatch/shelfmatch/internal/config"
	"github.com/shelfmatch/shelfmatch/pkg/arbiter"
	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/dedup"
	"github.com/shelfmatch/shelfmatch/pkg/match"
)

var (
	dedupCatalogPath string
	dedupResultsPath string
	dedupCachePath   string
	dedupDryRun      bool
	dedupModel       string
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Find and merge duplicate canonical products",
	Long: `Dedup scans the catalog for canonical products describing the same
real-world product. Attribute filters reject incompatible pairs first; the
remaining pairs are arbitrated by Gemini, and only confirmed groups merge.

Merges rewrite the affected match results to the surviving product, so both
the catalog and results files are updated in place. Requires GEMINI_API_KEY
(or GOOGLE_API_KEY).`,
	Args: cobra.NoArgs,
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	dedupCmd.Flags().StringVar(&dedupCatalogPath, "catalog", "catalog.yaml", "canonical catalog file")
	dedupCmd.Flags().StringVar(&dedupResultsPath, "results", "results.yaml", "match results file")
	dedupCmd.Flags().StringVar(&dedupCachePath, "verdict-cache", "", "file persisting arbitration verdicts between runs")
	dedupCmd.Flags().StringVar(&dedupModel, "model", "", "arbitration model override")
	dedupCmd.Flags().BoolVar(&dedupDryRun, "dry-run", false, "report duplicates without merging")
}

func runDedup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	catalog, err := catalogs.LoadCatalog(dedupCatalogPath)
	if err != nil {
		return err
	}
	store, err := loadResultsOrEmpty(dedupResultsPath)
	if err != nil {
		return err
	}

	apiKey, err := config.RequireGeminiAPIKey()
	if err != nil {
		return err
	}
	var arbOpts []arbiter.GeminiOption
	if dedupModel != "" {
		arbOpts = append(arbOpts, arbiter.WithModel(dedupModel))
	}
	arb, err := arbiter.NewGemini(ctx, apiKey, arbOpts...)
	if err != nil {
		return err
	}

	// A dry run merges a throwaway copy and writes nothing back.
	target := catalog
	if dedupDryRun {
		if target, err = catalog.Copy(); err != nil {
			return err
		}
	}

	dedupCfg := config.DedupConfig()
	dedupCfg.VerdictCachePath = dedupCachePath

	sm, err := shelfmatch.New(
		shelfmatch.WithInitialCatalog(target),
		shelfmatch.WithState(store, nil),
		shelfmatch.WithArbiter(arb),
		shelfmatch.WithDedupConfig(dedupCfg),
	)
	if err != nil {
		return err
	}

	report, err := sm.Dedup(ctx)
	if err != nil {
		return err
	}

	printDedupReport(cmd, report)

	if dedupDryRun {
		cmd.Println("\nDry run: no files written.")
		return nil
	}

	if err := catalogs.SaveCatalog(dedupCatalogPath, target); err != nil {
		return err
	}
	return match.SaveResults(dedupResultsPath, store)
}

func printDedupReport(cmd *cobra.Command, report *dedup.Report) {
	cmd.Printf("Pairs considered  %d\n", report.PairsConsidered)
	cmd.Printf("Filtered          %d\n", report.FilteredTotal())
	for reason, count := range report.PairsFiltered {
		cmd.Printf("  %-20s %d\n", reason, count)
	}
	cmd.Printf("Arbitrated        %d (same %d, distinct %d, cache hits %d)\n",
		report.PairsArbitrated, report.PairsSame, report.PairsDistinct, report.CacheHits)

	for _, group := range report.Groups {
		cmd.Printf("merged %v -> %s (%d listings rewritten): %s\n",
			group.MergedIDs, group.SurvivorID, group.ListingsRewritten, group.Reason)
	}
	for _, failed := range report.FailedMerges {
		cmd.Printf("merge failed for %v: %s\n", failed.MemberIDs, failed.Reason)
	}
	for _, pair := range report.Unresolved {
		cmd.Printf("unresolved (%s, %s): %s\n", pair.LeftID, pair.RightID, pair.Reason)
	}
}
