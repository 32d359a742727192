package scoring

import (
	"math"

	"github.com/your-org/medialib/internal/models"
)

// quality combines sharpness, exposure deviation from the target band, and a
// noise estimate into a single overall score using the configured weights.
// Issue codes are appended whenever a severity threshold is crossed.
func (e *Engine) quality(colors models.ColorSummary, camera *models.CameraInfo) models.QualityMetrics {
	// Contrast is the best available sharpness proxy from color statistics;
	// flat images are rarely sharp.
	sharpness := clamp01(colors.Contrast * 1.4)

	exposure := e.exposureScore(colors.Brightness)
	noise := noiseEstimate(colors, camera)

	wSum := e.cfg.SharpnessWeight + e.cfg.ExposureWeight + e.cfg.NoiseWeight
	overall := (sharpness*e.cfg.SharpnessWeight +
		exposure*e.cfg.ExposureWeight +
		(1-noise)*e.cfg.NoiseWeight) / wSum

	q := models.QualityMetrics{
		Sharpness: sharpness,
		Exposure:  exposure,
		Noise:     noise,
		Overall:   clamp01(overall),
	}

	if sharpness < e.cfg.LowSharpnessBelow {
		q.Issues = append(q.Issues, "low-sharpness")
	}
	if colors.Brightness > e.cfg.ExposureTargetHigh+0.2 {
		q.Issues = append(q.Issues, "overexposed")
	}
	if colors.Brightness < e.cfg.ExposureTargetLow-0.2 {
		q.Issues = append(q.Issues, "underexposed")
	}
	if noise > e.cfg.HighNoiseAbove {
		q.Issues = append(q.Issues, "high-noise")
	}

	return q
}

// exposureScore is 1 inside the target brightness band and falls off
// linearly with the distance outside it.
func (e *Engine) exposureScore(brightness float64) float64 {
	low, high := e.cfg.ExposureTargetLow, e.cfg.ExposureTargetHigh
	if brightness >= low && brightness <= high {
		return 1
	}
	var deviation float64
	if brightness < low {
		deviation = low - brightness
	} else {
		deviation = brightness - high
	}
	return clamp01(1 - deviation/math.Max(low, 1-high))
}

// noiseEstimate approximates sensor noise from capture settings when known,
// falling back to a brightness heuristic: dark frames carry more visible
// noise.
func noiseEstimate(colors models.ColorSummary, camera *models.CameraInfo) float64 {
	base := clamp01(0.15 + (0.4-colors.Brightness)*0.5)
	if camera != nil && camera.ISO > 0 {
		iso := clamp01(math.Log2(float64(camera.ISO)/100) / 6) // ISO 100..6400
		base = clamp01(base*0.5 + iso*0.5)
	}
	return base
}
