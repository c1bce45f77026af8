package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/match"
	"github.com/shelfmatch/shelfmatch/pkg/review"
)

var (
	queuePath        string
	queueResultsPath string
	queueMethod      string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and resolve the manual review queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review entries with their candidates",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueResolveCmd = &cobra.Command{
	Use:   "resolve <listing-ref> [product-id]",
	Short: "Resolve a review entry",
	Long: `Resolve settles one review entry. With a product ID the listing is
mapped to that canonical product; pick --method manual for products outside
the entry's candidate list. Without a product ID the entry is marked failed
and the listing is excluded from future automatic runs.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQueueResolve,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueResolveCmd)

	queueCmd.PersistentFlags().StringVar(&queuePath, "queue", "queue.yaml", "review queue file")
	queueResolveCmd.Flags().StringVar(&queueResultsPath, "results", "results.yaml", "match results file")
	queueResolveCmd.Flags().StringVar(&queueMethod, "method", string(match.MethodManual), "resolution method")
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	queue, err := review.LoadManager(queuePath)
	if err != nil {
		return err
	}

	pending := queue.Pending()
	if len(pending) == 0 {
		cmd.Println("Review queue is empty.")
		return nil
	}

	for _, entry := range pending {
		cmd.Printf("%s  %q", entry.ListingRef, entry.Listing.RawName)
		if entry.Listing.RawBrand != "" {
			cmd.Printf("  brand=%s", entry.Listing.RawBrand)
		}
		cmd.Println()
		for _, cand := range entry.Candidates {
			cmd.Printf("    %-14s %s  confidence %.2f\n", cand.Method, cand.ProductID, cand.Confidence)
		}
	}
	cmd.Printf("\n%d pending\n", len(pending))
	return nil
}

func runQueueResolve(cmd *cobra.Command, args []string) error {
	queue, err := review.LoadManager(queuePath)
	if err != nil {
		return err
	}

	listingRef := args[0]
	var productID catalogs.ProductID
	if len(args) == 2 {
		productID = catalogs.ProductID(args[1])
	}

	result, err := queue.Resolve(listingRef, productID, match.Method(queueMethod))
	if err != nil {
		return err
	}

	if result != nil {
		store, err := loadResultsOrEmpty(queueResultsPath)
		if err != nil {
			return err
		}
		if err := store.Save(*result); err != nil {
			return err
		}
		if err := match.SaveResults(queueResultsPath, store); err != nil {
			return err
		}
		cmd.Printf("%s -> %s (%s, confidence %.2f)\n",
			listingRef, result.ProductID, result.Method, result.Confidence)
	} else {
		cmd.Printf("%s marked failed\n", listingRef)
	}

	return review.SaveManager(queuePath, queue)
}
