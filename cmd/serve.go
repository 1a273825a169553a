package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/backfill"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/metrics"
	"github.com/kozaktomas/visualmatch/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the visualmatch HTTP API.

Every configured kind is served under /api/v1/{kind}. The server starts
before the feature extractor is reachable and keeps probing it in the
background; until then registration and queries answer 503. When
BACKFILL_INTERVAL_SEC is set, pending subjects are registered periodically.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, l, engines, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeEngines(engines, l)

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	metrics.Register()

	go func() {
		if err := engines.WaitForExtractor(ctx, 5*time.Second); err != nil {
			l.Warn("feature extractor never became ready", zap.Error(err))
			return
		}
		l.Info("feature extractor ready", zap.String("url", cfg.Extractor.URL))
	}()

	if cfg.Backfill.Interval > 0 {
		sched, err := backfill.NewScheduler(engines.Pipelines(), engines.Locker(),
			cfg.Backfill.Interval, cfg.Backfill.BatchSize, l.Named("scheduler"))
		if err != nil {
			return err
		}
		go sched.Run(ctx)
		l.Info("backfill scheduler enabled", zap.Duration("interval", cfg.Backfill.Interval))
	}

	server := web.NewServer(cfg, engines, l.Named("web"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Starting visualmatch on http://%s:%d (kinds: %v)\n", cfg.Web.Host, cfg.Web.Port, engines.Kinds())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
