package detect

import (
	"image"
	"math"
	"sort"

	"github.com/your-org/medialib/internal/models"
)

// colorNames maps coarse hue buckets (60 degrees each) to display names.
var colorNames = []string{"red", "yellow", "green", "cyan", "blue", "magenta"}

// summarizeColors computes a ColorSummary from raw pixels. The image is
// sampled on a coarse grid; exact per-pixel statistics are not worth the
// cost at enrichment time.
func summarizeColors(img image.Image) models.ColorSummary {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || h == 0 {
		return models.ColorSummary{}
	}

	stepX := w / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := h / 64
	if stepY < 1 {
		stepY = 1
	}

	var (
		n          float64
		sumLuma    float64
		sumLumaSq  float64
		sumSat     float64
		warmCount  float64
		hueBuckets [6]float64
	)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			rf := float64(r>>8) / 255.0
			gf := float64(g>>8) / 255.0
			bf := float64(b>>8) / 255.0

			luma := 0.299*rf + 0.587*gf + 0.114*bf
			maxC := math.Max(rf, math.Max(gf, bf))
			minC := math.Min(rf, math.Min(gf, bf))
			delta := maxC - minC

			var sat float64
			if maxC > 0 {
				sat = delta / maxC
			}

			n++
			sumLuma += luma
			sumLumaSq += luma * luma
			sumSat += sat

			if rf > bf {
				warmCount++
			}

			if delta > 0.05 {
				hueBuckets[hueBucket(rf, gf, bf, maxC, delta)] += sat
			}
		}
	}

	mean := sumLuma / n
	variance := sumLumaSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	type bucketWeight struct {
		name   string
		weight float64
	}
	ranked := make([]bucketWeight, 0, len(hueBuckets))
	for i, wgt := range hueBuckets {
		if wgt > 0 {
			ranked = append(ranked, bucketWeight{colorNames[i], wgt})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })

	var dominant, palette []string
	for i, bw := range ranked {
		palette = append(palette, bw.name)
		if i < 2 {
			dominant = append(dominant, bw.name)
		}
	}

	return models.ColorSummary{
		DominantColors: dominant,
		Palette:        palette,
		Brightness:     mean,
		Contrast:       math.Min(1, math.Sqrt(variance)*2),
		Saturation:     sumSat / n,
		Temperature:    warmCount / n,
	}
}

// hueBucket returns the 60-degree hue sector index for an RGB pixel.
func hueBucket(r, g, b, maxC, delta float64) int {
	var hue float64
	switch maxC {
	case r:
		hue = math.Mod((g-b)/delta, 6)
	case g:
		hue = (b-r)/delta + 2
	default:
		hue = (r-g)/delta + 4
	}
	if hue < 0 {
		hue += 6
	}
	idx := int(hue) // 0..5
	if idx > 5 {
		idx = 5
	}
	return idx
}
