package colors

import (
	"fmt"
	"math"
	"slices"
)

// fractionTolerance absorbs rounding in fractions reported by the extractor.
const fractionTolerance = 1e-6

// RGB is a color triplet.
type RGB [3]uint8

// Swatch is one dominant color and the share of the image area it covers.
type Swatch struct {
	Color    RGB
	Fraction float64
}

// Sample is a list of swatches ordered by descending area fraction.
type Sample []Swatch

// NewSample builds a sample from parallel color and fraction lists, validates them,
// and orders the swatches by descending fraction. Ties keep their input order.
func NewSample(rgbs [][]float64, fractions []float64) (Sample, error) {
	if len(rgbs) != len(fractions) {
		return nil, fmt.Errorf("got %d colors but %d percentages", len(rgbs), len(fractions))
	}

	sample := make(Sample, 0, len(rgbs))
	var total float64
	for i, raw := range rgbs {
		c, err := parseRGB(raw)
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		f := fractions[i]
		if math.IsNaN(f) || f < 0 || f > 1+fractionTolerance {
			return nil, fmt.Errorf("color %d: fraction %v outside [0, 1]", i, f)
		}
		total += f
		sample = append(sample, Swatch{Color: c, Fraction: min(f, 1)})
	}
	if total > 1+fractionTolerance {
		return nil, fmt.Errorf("fractions sum to %v, more than 1", total)
	}

	slices.SortStableFunc(sample, func(a, b Swatch) int {
		switch {
		case a.Fraction > b.Fraction:
			return -1
		case a.Fraction < b.Fraction:
			return 1
		default:
			return 0
		}
	})
	return sample, nil
}

func parseRGB(raw []float64) (RGB, error) {
	var c RGB
	if len(raw) != 3 {
		return c, fmt.Errorf("expected 3 channels, got %d", len(raw))
	}
	for i, v := range raw {
		if math.IsNaN(v) || v < 0 || v > 255 {
			return c, fmt.Errorf("channel value %v outside [0, 255]", v)
		}
		c[i] = uint8(math.Round(v))
	}
	return c, nil
}

// Colors returns the RGB triplets in sample order.
func (s Sample) Colors() []RGB {
	out := make([]RGB, len(s))
	for i, sw := range s {
		out[i] = sw.Color
	}
	return out
}

// Fractions returns the area fractions in sample order.
func (s Sample) Fractions() []float64 {
	out := make([]float64, len(s))
	for i, sw := range s {
		out[i] = sw.Fraction
	}
	return out
}

// FromStored rebuilds a sample from persisted colors and fractions.
func FromStored(rgbs []RGB, fractions []float64) (Sample, error) {
	raw := make([][]float64, len(rgbs))
	for i, c := range rgbs {
		raw[i] = []float64{float64(c[0]), float64(c[1]), float64(c[2])}
	}
	return NewSample(raw, fractions)
}
