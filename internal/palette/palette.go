// Package palette derives a dominant color sample from raw image bytes.
package palette

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"

	"github.com/kozaktomas/visualmatch/internal/colors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxColors matches the number of colors the extractor service reports.
const DefaultMaxColors = 5

// sampleSize is the edge length images are reduced to before counting.
const sampleSize = 64

// ErrTransparent is returned when an image has no opaque pixels to count.
var ErrTransparent = errors.New("image has no opaque pixels")

type bucket struct {
	key     uint16
	count   int
	r, g, b int
}

// Extract decodes an image and returns up to maxColors dominant colors ordered by
// descending area fraction. Pixels are grouped by 4-bit-per-channel quantization and
// each group is reported as the mean of its members.
func Extract(data []byte, maxColors int) (colors.Sample, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img, maxColors)
}

// FromImage is Extract for an already decoded image.
func FromImage(img image.Image, maxColors int) (colors.Sample, error) {
	if maxColors <= 0 {
		maxColors = DefaultMaxColors
	}

	small := shrink(img)
	bounds := small.Bounds()

	buckets := make(map[uint16]*bucket)
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := small.RGBAAt(x, y)
			if c.A < 128 {
				continue
			}
			key := uint16(c.R>>4)<<8 | uint16(c.G>>4)<<4 | uint16(c.B>>4)
			bk, ok := buckets[key]
			if !ok {
				bk = &bucket{key: key}
				buckets[key] = bk
			}
			bk.count++
			bk.r += int(c.R)
			bk.g += int(c.G)
			bk.b += int(c.B)
			total++
		}
	}
	if total == 0 {
		return nil, ErrTransparent
	}

	ranked := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		ranked = append(ranked, bk)
	}
	slices.SortFunc(ranked, func(a, b *bucket) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return int(a.key) - int(b.key)
	})
	if len(ranked) > maxColors {
		ranked = ranked[:maxColors]
	}

	sample := make(colors.Sample, len(ranked))
	for i, bk := range ranked {
		sample[i] = colors.Swatch{
			Color: colors.RGB{
				uint8((bk.r + bk.count/2) / bk.count),
				uint8((bk.g + bk.count/2) / bk.count),
				uint8((bk.b + bk.count/2) / bk.count),
			},
			Fraction: float64(bk.count) / float64(total),
		}
	}
	return sample, nil
}

// shrink scales an image down to at most sampleSize on each side. Nearest neighbor
// keeps the original colors instead of blending edges into new ones.
func shrink(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > sampleSize {
		w = sampleSize
	}
	if h > sampleSize {
		h = sampleSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
