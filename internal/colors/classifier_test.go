package colors

import (
	"errors"
	"math"
	"testing"
)

var (
	pureRed  = RGB{255, 0, 0}
	darkRed  = RGB{200, 0, 0}
	pureBlue = RGB{0, 0, 255}
)

func TestNameHSL_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		h, s, l float64
		want    Label
	}{
		// Lightness 14/15 for black.
		{"lightness 14 is black", 0, 50, 14, Black},
		{"lightness 14.99 is black", 0, 50, 14.99, Black},
		{"lightness 15 is not black", 0, 50, 15, Red},

		// Lightness 84/85 and saturation 9/10 for white.
		{"lightness 85 saturation 9 is white", 0, 9, 85, White},
		{"lightness 86 saturation 9 is white", 0, 9, 86, White},
		{"lightness 84 saturation 9 is light gray", 0, 9, 84, LightGray},
		{"lightness 90 saturation 10 is light gray", 0, 10, 90, LightGray},
		{"lightness 90 saturation 9.99 is white", 0, 9.99, 90, White},

		// Saturation 14/15 for grays.
		{"saturation 14 is gray", 0, 14, 50, Gray},
		{"saturation 15 is chromatic", 0, 15, 50, Red},
		{"dark gray below 40", 0, 5, 39, DarkGray},
		{"gray at 40", 0, 5, 40, Gray},
		{"gray at 69", 0, 5, 69, Gray},
		{"light gray at 70", 0, 5, 70, LightGray},

		// Hue boundaries at +-1 degree.
		{"hue 0", 0, 80, 50, Red},
		{"hue 14", 14, 80, 50, Red},
		{"hue 15", 15, 80, 50, Orange},
		{"hue 16", 16, 80, 50, Orange},
		{"hue 44", 44, 80, 50, Orange},
		{"hue 45", 45, 80, 50, Yellow},
		{"hue 46", 46, 80, 50, Yellow},
		{"hue 69", 69, 80, 50, Yellow},
		{"hue 70", 70, 80, 50, Green},
		{"hue 71", 71, 80, 50, Green},
		{"hue 149", 149, 80, 50, Green},
		{"hue 150", 150, 80, 50, Cyan},
		{"hue 151", 151, 80, 50, Cyan},
		{"hue 199", 199, 80, 50, Cyan},
		{"hue 200", 200, 80, 50, Blue},
		{"hue 201", 201, 80, 50, Blue},
		{"hue 259", 259, 80, 50, Blue},
		{"hue 260", 260, 80, 50, Purple},
		{"hue 261", 261, 80, 50, Purple},
		{"hue 329", 329, 80, 50, Purple},
		{"hue 330", 330, 80, 50, Pink},
		{"hue 331", 331, 80, 50, Pink},
		{"hue 344", 344, 80, 50, Pink},
		{"hue 345", 345, 80, 50, Red},
		{"hue 346", 346, 80, 50, Red},
		{"hue 359.9", 359.9, 80, 50, Red},
		{"hue 360 wraps", 360, 80, 50, Red},
		{"negative hue wraps", -100, 80, 50, Purple},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NameHSL(tc.h, tc.s, tc.l)
			if got != tc.want {
				t.Errorf("NameHSL(%v, %v, %v) = %q, want %q", tc.h, tc.s, tc.l, got, tc.want)
			}
		})
	}
}

func TestName_RGB(t *testing.T) {
	tests := []struct {
		color RGB
		want  Label
	}{
		{RGB{0, 0, 0}, Black},
		{RGB{30, 30, 30}, Black},
		{RGB{255, 255, 255}, White},
		{RGB{64, 64, 64}, DarkGray},
		{RGB{128, 128, 128}, Gray},
		{RGB{200, 200, 200}, LightGray},
		{pureRed, Red},
		{RGB{255, 165, 0}, Orange},
		{RGB{255, 255, 0}, Yellow},
		{RGB{0, 255, 0}, Green},
		{RGB{0, 255, 255}, Cyan},
		{pureBlue, Blue},
		{RGB{128, 0, 128}, Purple},
		{RGB{255, 0, 100}, Pink},
	}

	for _, tc := range tests {
		t.Run(string(tc.want), func(t *testing.T) {
			if got := Name(tc.color); got != tc.want {
				t.Errorf("Name(%v) = %q, want %q", tc.color, got, tc.want)
			}
		})
	}
}

func TestToHSL(t *testing.T) {
	h, s, l := ToHSL(pureRed)
	if h != 0 || s != 100 || l != 50 {
		t.Errorf("ToHSL(red) = (%v, %v, %v), want (0, 100, 50)", h, s, l)
	}

	h, s, l = ToHSL(RGB{0, 255, 255})
	if math.Abs(h-180) > 1e-9 || s != 100 || l != 50 {
		t.Errorf("ToHSL(cyan) = (%v, %v, %v), want (180, 100, 50)", h, s, l)
	}

	_, s, l = ToHSL(RGB{128, 128, 128})
	if s != 0 || math.Abs(l-50.196) > 0.01 {
		t.Errorf("ToHSL(gray) s=%v l=%v", s, l)
	}
}

func TestName_TotalAndDeterministic(t *testing.T) {
	known := map[Label]bool{
		Black: true, White: true, DarkGray: true, Gray: true, LightGray: true,
		Red: true, Orange: true, Yellow: true, Green: true, Cyan: true,
		Blue: true, Purple: true, Pink: true,
	}

	for r := 0; r <= 255; r += 15 {
		for g := 0; g <= 255; g += 15 {
			for b := 0; b <= 255; b += 15 {
				c := RGB{uint8(r), uint8(g), uint8(b)}
				first := Name(c)
				if !known[first] {
					t.Fatalf("Name(%v) = %q, not a canonical name", c, first)
				}
				if again := Name(c); again != first {
					t.Fatalf("Name(%v) not deterministic: %q then %q", c, first, again)
				}
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   Label
	}{
		{
			name:   "bicolor above threshold",
			sample: Sample{{pureRed, 0.6}, {pureBlue, 0.25}},
			want:   "red and blue",
		},
		{
			name:   "secondary below threshold",
			sample: Sample{{pureRed, 0.6}, {pureBlue, 0.15}},
			want:   Red,
		},
		{
			name:   "secondary exactly at threshold",
			sample: Sample{{pureRed, 0.6}, {pureBlue, 0.2}},
			want:   Red,
		},
		{
			name:   "same name twice",
			sample: Sample{{pureRed, 0.6}, {darkRed, 0.3}},
			want:   Red,
		},
		{
			name:   "single entry never bicolor",
			sample: Sample{{pureBlue, 1.0}},
			want:   Blue,
		},
		{
			name:   "single small entry",
			sample: Sample{{pureBlue, 0.1}},
			want:   Blue,
		},
		{
			name:   "third entry ignored",
			sample: Sample{{pureRed, 0.5}, {darkRed, 0.25}, {pureBlue, 0.25}},
			want:   Red,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(tc.sample)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify_Empty(t *testing.T) {
	for _, sample := range []Sample{nil, {}} {
		_, err := Classify(sample)
		if !errors.Is(err, ErrNoColorData) {
			t.Errorf("expected ErrNoColorData, got %v", err)
		}
	}
}

func TestLabel_Split(t *testing.T) {
	a, b, ok := Label("red and blue").Split()
	if !ok || a != Red || b != Blue {
		t.Errorf("Split() = (%q, %q, %v)", a, b, ok)
	}
	if Label("light gray").IsBicolor() {
		t.Error("light gray should not be bicolor")
	}
	if !Label("dark gray and white").IsBicolor() {
		t.Error("dark gray and white should be bicolor")
	}
}
