package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <subject-id>",
	Short: "Register one subject from a photo",
	Long: `Extract the feature vector and dominant colors of a photo and store them
for the subject, replacing any earlier registration. With --url the image
reference is also saved on the subject so that later backfills can use it.

Examples:
  visualmatch register --kind pet rex-42 --url https://example.com/rex.jpg
  visualmatch register --kind victim v-17 --file ./photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	addImageFlags(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	subjectID := args[0]

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

	if ref.URL != "" {
		if _, err := e.Registry.CreateSubject(ctx, subjectID, ref.URL); err != nil {
			return fmt.Errorf("saving image reference: %w", err)
		}
	}
	if err := e.Service.RegisterSubject(ctx, subjectID, ref); err != nil {
		return fmt.Errorf("registering %s: %w", subjectID, err)
	}

	subject, err := e.Registry.GetSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(subject)
	}

	fmt.Printf("Registered %s %s\n", e.Kind.Name, subject.ID)
	fmt.Printf("  Status: %s\n", subject.Status)
	if subject.Label != "" {
		fmt.Printf("  Color:  %s\n", subject.Label)
	} else {
		fmt.Printf("  Color:  (no color data)\n")
	}
	return nil
}
