// Package scoring derives quality metrics, documentary-value scores, and
// tags from a detection bundle. Everything here is a pure function of its
// inputs and the thresholds in config.ScoringConfig: same bundle in, same
// analysis out.
package scoring

import (
	"log/slog"
	"time"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

type Engine struct {
	cfg config.ScoringConfig
}

func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Analyze produces the full MediaAnalysis plus derived tags for one asset.
// Malformed detections are clamped, never rejected; scoring does not fail on
// well-formed input.
func (e *Engine) Analyze(bundle *models.DetectionBundle, meta models.FormatMetadata) (*models.MediaAnalysis, []models.Tag) {
	sanitized := e.sanitize(bundle)

	analysis := &models.MediaAnalysis{
		Objects:    sanitized.Objects,
		Scenes:     sanitized.Scenes,
		Colors:     sanitized.Colors,
		Quality:    e.quality(sanitized.Colors, meta.Camera),
		DocValue:   e.documentaryValue(sanitized),
		AnalyzedAt: time.Now().UTC(),
	}

	return analysis, e.deriveTags(sanitized)
}

// sanitize clamps out-of-range confidences into [0,1]. Each clamp is logged
// as a warning so malformed detector output is visible without failing the
// pipeline.
func (e *Engine) sanitize(bundle *models.DetectionBundle) *models.DetectionBundle {
	out := *bundle

	out.Objects = make([]models.ObjectDetection, len(bundle.Objects))
	for i, o := range bundle.Objects {
		if o.Confidence < 0 || o.Confidence > 1 {
			slog.Warn("clamped object confidence", "name", o.Name, "confidence", o.Confidence)
			o.Confidence = clamp01(o.Confidence)
		}
		out.Objects[i] = o
	}

	out.Scenes = make([]models.SceneDetection, len(bundle.Scenes))
	for i, s := range bundle.Scenes {
		if s.Confidence < 0 || s.Confidence > 1 {
			slog.Warn("clamped scene confidence", "name", s.Name, "confidence", s.Confidence)
			s.Confidence = clamp01(s.Confidence)
		}
		out.Scenes[i] = s
	}

	out.Faces = make([]models.FaceObservation, len(bundle.Faces))
	for i, f := range bundle.Faces {
		if f.Confidence < 0 || f.Confidence > 1 {
			slog.Warn("clamped face confidence", "confidence", f.Confidence)
			f.Confidence = clamp01(f.Confidence)
		}
		out.Faces[i] = f
	}

	return &out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
