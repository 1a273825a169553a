package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visualmatch/internal/config"
	"github.com/kozaktomas/visualmatch/internal/database/postgres"
	"github.com/kozaktomas/visualmatch/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Long: `Apply the embedded schema migrations to DATABASE_URL and list the
migrations recorded in the database. The server applies them on start too.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	pool, err := postgres.Open(logger.ContextWithLogger(ctx, l), &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(applied)
	}
	fmt.Printf("Applied migrations:\n")
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
