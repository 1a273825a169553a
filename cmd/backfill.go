package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/visualmatch/internal/backfill"
	"github.com/kozaktomas/visualmatch/internal/lock"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Register pending subjects",
	Long: `Register subjects that have an image reference but no feature vector yet.

Up to --batch-size pending subjects (oldest first) are sent to the feature
extractor. A failure of one subject is reported and does not stop the run;
the subject stays pending and is retried on the next run.

Runs of the same kind are serialized through the backfill lock, which is
shared with the server when REDIS_ADDR is set.

Examples:
  # Register the next 50 pending pets
  visualmatch backfill --kind pet

  # Register up to 200 victims with 4 parallel requests
  visualmatch backfill --kind victim --batch-size 200 --concurrency 4`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().Int("batch-size", 0, "Pending subjects to process (defaults to BACKFILL_BATCH_SIZE)")
	backfillCmd.Flags().Int("concurrency", 0, "Parallel registrations (defaults to BACKFILL_CONCURRENCY)")
	backfillCmd.Flags().Bool("no-progress", false, "Hide the progress bar")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonOutput := mustGetBool(cmd, "json")
	batchSize := mustGetInt(cmd, "batch-size")
	concurrency := mustGetInt(cmd, "concurrency")
	showProgress := !jsonOutput && !mustGetBool(cmd, "no-progress")

	cfg, l, engines, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeEngines(engines, l)

	e, err := selectEngine(cmd, engines)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = cfg.Backfill.BatchSize
	}
	if concurrency <= 0 {
		concurrency = cfg.Backfill.Concurrency
	}

	if err := engines.InitExtractor(ctx); err != nil {
		return fmt.Errorf("feature extractor is not reachable: %w", err)
	}

	opts := []backfill.Option{
		backfill.WithConcurrency(concurrency),
		backfill.WithLogger(l.Named(e.Kind.Name)),
	}
	var bar *progressbar.ProgressBar
	if showProgress {
		opts = append(opts, backfill.WithProgress(func(p backfill.Progress) {
			if bar == nil {
				bar = newBackfillBar(p.Total)
			}
			_ = bar.Add(1)
		}))
	}
	pipeline := backfill.NewPipeline(e.Kind.Name, e.Registry, e.Service, opts...)

	report, err := backfill.RunExclusive(ctx, engines.Locker(), pipeline, batchSize)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if errors.Is(err, lock.ErrHeld) {
		return fmt.Errorf("a %s backfill is already running", e.Kind.Name)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(report)
	}
	printBackfillReport(report)
	return nil
}

func newBackfillBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Registering subjects"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("subjects"),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printBackfillReport(report *backfill.Report) {
	if len(report.Outcomes) == 0 {
		fmt.Printf("No pending %s subjects.\n", report.Kind)
		return
	}

	for _, o := range report.Outcomes {
		if o.Status == backfill.StatusFailed {
			fmt.Printf("  FAILED  %s: %s\n", o.SubjectID, o.Error)
		}
	}
	fmt.Printf("\nBackfill %s (%s) finished in %s\n", report.RunID, report.Kind, report.Duration.Round(time.Millisecond))
	fmt.Printf("  Succeeded: %d\n", report.Succeeded)
	fmt.Printf("  Failed:    %d\n", report.Failed)
}
