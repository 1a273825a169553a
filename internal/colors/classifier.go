// Package colors names the dominant colors of a photo from its RGB color sample.
package colors

import (
	"errors"
	"math"
	"strings"
)

// ErrNoColorData is returned when a sample has no entries to classify.
var ErrNoColorData = errors.New("no color data")

// BicolorMinFraction is the area share the second color must exceed to be named in the label.
const BicolorMinFraction = 0.2

// Canonical single color names.
const (
	Black     Label = "black"
	White     Label = "white"
	DarkGray  Label = "dark gray"
	Gray      Label = "gray"
	LightGray Label = "light gray"
	Red       Label = "red"
	Orange    Label = "orange"
	Yellow    Label = "yellow"
	Green     Label = "green"
	Cyan      Label = "cyan"
	Blue      Label = "blue"
	Purple    Label = "purple"
	Pink      Label = "pink"
)

// HSL thresholds (saturation and lightness in percent).
const (
	blackMaxLightness  = 15
	whiteMinLightness  = 85
	whiteMaxSaturation = 10
	grayMaxSaturation  = 15
	darkGrayLightness  = 40
	grayLightness      = 70
)

// hueRange maps [From, To) degrees to a color name.
type hueRange struct {
	From, To float64
	Name     Label
}

// hueRanges is checked in order; red wraps around and is handled before the table.
var hueRanges = []hueRange{
	{15, 45, Orange},
	{45, 70, Yellow},
	{70, 150, Green},
	{150, 200, Cyan},
	{200, 260, Blue},
	{260, 330, Purple},
	{330, 345, Pink},
}

// Label is a canonical color name or a compound "A and B" bicolor name.
type Label string

// String returns the label text.
func (l Label) String() string {
	return string(l)
}

// IsBicolor reports whether the label names two colors.
func (l Label) IsBicolor() bool {
	_, _, ok := l.Split()
	return ok
}

// Split returns both names of a bicolor label.
func (l Label) Split() (Label, Label, bool) {
	a, b, ok := strings.Cut(string(l), " and ")
	if !ok {
		return l, "", false
	}
	return Label(a), Label(b), true
}

// Classify names the sample. The first entry is the primary color. A second entry
// whose fraction exceeds BicolorMinFraction and whose name differs is appended.
func Classify(sample Sample) (Label, error) {
	if len(sample) == 0 {
		return "", ErrNoColorData
	}

	primary := Name(sample[0].Color)
	if len(sample) > 1 && sample[1].Fraction > BicolorMinFraction {
		secondary := Name(sample[1].Color)
		if secondary != primary {
			return primary + " and " + secondary, nil
		}
	}
	return primary, nil
}

// Name returns the canonical name of a single RGB color.
func Name(c RGB) Label {
	h, s, l := ToHSL(c)
	return NameHSL(h, s, l)
}

// NameHSL names a color given hue in degrees and saturation/lightness in percent.
func NameHSL(h, s, l float64) Label {
	if l < blackMaxLightness {
		return Black
	}
	if l >= whiteMinLightness && s < whiteMaxSaturation {
		return White
	}
	if s < grayMaxSaturation {
		switch {
		case l < darkGrayLightness:
			return DarkGray
		case l < grayLightness:
			return Gray
		default:
			return LightGray
		}
	}

	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h < 15 || h >= 345 {
		return Red
	}
	for _, r := range hueRanges {
		if h >= r.From && h < r.To {
			return r.Name
		}
	}
	return Red
}

// ToHSL converts an RGB color to hue in degrees [0, 360) and saturation and
// lightness in percent [0, 100].
func ToHSL(c RGB) (h, s, l float64) {
	r := float64(c[0]) / 255
	g := float64(c[1]) / 255
	b := float64(c[2]) / 255

	hi := max(r, g, b)
	lo := min(r, g, b)
	l = (hi + lo) / 2

	if hi == lo {
		return 0, 0, l * 100
	}

	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}

	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}

	return h * 60, s * 100, l * 100
}
