package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/palette"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [r,g,b:fraction ...]",
	Short: "Name the colors of a color sample or image",
	Long: `Print the color label for a list of dominant colors, or for the palette
extracted locally from an image file.

Each argument is an RGB triple with its area fraction. Entries are ordered by
fraction before naming.

Examples:
  visualmatch classify 200,30,30:0.6 20,20,200:0.3
  visualmatch classify --file ./dog.jpg`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().String("file", "", "Image file to extract the palette from")
}

// classifyOutput is the JSON shape of the classify command.
type classifyOutput struct {
	Label     colors.Label `json:"label"`
	Primary   colors.Label `json:"primary"`
	Secondary colors.Label `json:"secondary,omitempty"`
	Colors    []colors.RGB `json:"colors"`
	Fractions []float64    `json:"fractions"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	var (
		sample colors.Sample
		err    error
	)
	if path := mustGetString(cmd, "file"); path != "" {
		sample, err = sampleFromFile(path)
	} else {
		sample, err = parseSampleArgs(args)
	}
	if err != nil {
		return err
	}

	label, err := colors.Classify(sample)
	if err != nil {
		return err
	}
	out := classifyOutput{Label: label, Primary: label, Colors: sample.Colors(), Fractions: sample.Fractions()}
	if a, b, ok := label.Split(); ok {
		out.Primary, out.Secondary = a, b
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}
	for _, sw := range sample {
		fmt.Printf("  rgb(%3d, %3d, %3d)  %5.1f%%  %s\n",
			sw.Color[0], sw.Color[1], sw.Color[2], sw.Fraction*100, colors.Name(sw.Color))
	}
	fmt.Printf("\nLabel: %s\n", label)
	return nil
}

func sampleFromFile(path string) (colors.Sample, error) {
	data, err := readImageFile(path)
	if err != nil {
		return nil, err
	}
	return palette.Extract(data, palette.DefaultMaxColors)
}

// parseSampleArgs parses "r,g,b:fraction" arguments.
func parseSampleArgs(args []string) (colors.Sample, error) {
	if len(args) == 0 {
		return nil, errors.New("expected at least one r,g,b:fraction argument or --file")
	}

	rgbs := make([][]float64, 0, len(args))
	fractions := make([]float64, 0, len(args))
	for _, arg := range args {
		rgbPart, fracPart, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid color %q: expected r,g,b:fraction", arg)
		}
		frac, err := strconv.ParseFloat(fracPart, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction in %q: %w", arg, err)
		}

		var rgb []float64
		for ch := range strings.SplitSeq(rgbPart, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(ch), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid channel in %q: %w", arg, err)
			}
			rgb = append(rgb, v)
		}
		rgbs = append(rgbs, rgb)
		fractions = append(fractions, frac)
	}
	return colors.NewSample(rgbs, fractions)
}
