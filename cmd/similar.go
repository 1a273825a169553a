package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visualmatch/internal/constants"
)

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Find registered subjects resembling a photo",
	Long: `Rank the registered subjects of a kind by cosine similarity to a photo.

Only subjects scoring at least --threshold are listed, best first. The
threshold and limit default to the settings of the kind.

Examples:
  visualmatch similar --kind pet --file ./found-dog.jpg
  visualmatch similar --kind victim --url https://example.com/p.jpg --threshold 0.8 --limit 5`,
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)
	addImageFlags(similarCmd)

	similarCmd.Flags().Float64("threshold", -2, "Minimum cosine similarity in [-1, 1] (defaults to the kind's threshold)")
	similarCmd.Flags().Int("limit", -1, "Maximum results (defaults to the kind's limit)")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ref, err := imageRefFromFlags(cmd)
	if err != nil {
		return err
	}

	_, l, engines, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeEngines(engines, l)

	e, err := selectEngine(cmd, engines)
	if err != nil {
		return err
	}
	if err := engines.InitExtractor(ctx); err != nil {
		return fmt.Errorf("feature extractor is not reachable: %w", err)
	}

	threshold := e.Kind.Threshold
	if threshold == 0 {
		threshold = constants.DefaultSimilarityThreshold
	}
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}
	limit := e.Kind.Limit
	if limit == 0 {
		limit = constants.DefaultSimilarLimit
	}
	if cmd.Flags().Changed("limit") {
		limit = mustGetInt(cmd, "limit")
	}

	matches, err := e.Service.FindSimilar(ctx, ref, threshold, limit)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(matches)
	}

	if len(matches) == 0 {
		fmt.Printf("No %s subjects scored %.2f or higher.\n", e.Kind.Name, threshold)
		return nil
	}
	fmt.Printf("Similar %s subjects (threshold %.2f):\n\n", e.Kind.Name, threshold)
	fmt.Printf("%-4s %-36s %s\n", "#", "SUBJECT", "SCORE")
	for i, m := range matches {
		fmt.Printf("%-4d %-36s %.4f\n", i+1, m.SubjectID, m.Score)
	}
	return nil
}
