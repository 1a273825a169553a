package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "visualmatch",
	Short: "Match photos of pets and people by visual similarity",
	Long: `visualmatch registers photos of subjects (lost pets, missing persons) as
feature vectors with a named color label, and finds registered subjects that
look like a query photo.

Feature vectors come from an external extraction service (EXTRACTOR_URL).
Subjects are stored in PostgreSQL with pgvector (DATABASE_URL) or, when no
database is configured, in an in-memory index.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("kind", "pet", "Subject kind (pet, victim)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
