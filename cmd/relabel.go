package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visualmatch/internal/backfill"
)

var relabelCmd = &cobra.Command{
	Use:   "relabel",
	Short: "Recompute color labels from stored colors",
	Long: `Recompute the color label of every registered subject of a kind from its
stored color sample, without calling the feature extractor. Run this after
the naming rules change.

Examples:
  # Show what would change
  visualmatch relabel --kind pet --dry-run

  # Rewrite the labels
  visualmatch relabel --kind pet`,
	RunE: runRelabel,
}

func init() {
	rootCmd.AddCommand(relabelCmd)
	relabelCmd.Flags().Bool("dry-run", false, "Report changes without writing them")
}

// relabelOutput is the JSON shape of the relabel command.
type relabelOutput struct {
	Kind    string                 `json:"kind"`
	DryRun  bool                   `json:"dry_run"`
	Stats   *backfill.RelabelStats `json:"stats"`
	Changes []backfill.LabelChange `json:"changes"`
}

func runRelabel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dryRun := mustGetBool(cmd, "dry-run")

	_, l, engines, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeEngines(engines, l)

	e, err := selectEngine(cmd, engines)
	if err != nil {
		return err
	}

	stats, changes, err := backfill.NewRelabeler(e.Registry, dryRun, l.Named(e.Kind.Name)).Run(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(relabelOutput{Kind: e.Kind.Name, DryRun: dryRun, Stats: stats, Changes: changes})
	}

	for _, c := range changes {
		fmt.Printf("  %s: %q -> %q\n", c.SubjectID, c.From, c.To)
	}
	if dryRun {
		fmt.Printf("\nDry run, no labels written.\n")
	}
	fmt.Printf("\nScanned %d, changed %d, unchanged %d, skipped %d, failed %d\n",
		stats.Scanned, stats.Changed, stats.Unchanged, stats.Skipped, stats.Failed)
	return nil
}
