package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

func testEngine() *Engine {
	return NewEngine(config.Default().Scoring)
}

func TestAnalyzeDerivesTagsFromDetections(t *testing.T) {
	engine := testEngine()

	bundle := &models.DetectionBundle{
		SchemaVersion: models.BundleSchemaVersion,
		Objects: []models.ObjectDetection{
			{Name: "person", Confidence: 0.94},
			{Name: "person", Confidence: 0.91},
			{Name: "building", Confidence: 0.88},
		},
		Scenes: []models.SceneDetection{
			{Name: "outdoor", Confidence: 0.92},
		},
		Faces: []models.FaceObservation{
			{Confidence: 0.9, Emotions: []models.EmotionScore{{Name: "joy", Score: 0.8}}},
			{Confidence: 0.85},
		},
		Colors: models.ColorSummary{Brightness: 0.5, Contrast: 0.5, Saturation: 0.4},
	}

	analysis, tags := engine.Analyze(bundle, models.FormatMetadata{})
	require.NotNil(t, analysis)

	byName := make(map[string]models.Tag)
	for _, tag := range tags {
		byName[tag.Name] = tag
	}

	person, ok := byName["person"]
	require.True(t, ok, "expected a person tag")
	assert.Equal(t, models.TagCategoryObject, person.Category)
	assert.InDelta(t, 0.94, person.Confidence, 1e-9, "duplicate tags keep the highest confidence")

	outdoor, ok := byName["outdoor"]
	require.True(t, ok, "expected an outdoor tag")
	assert.Equal(t, models.TagCategoryLocation, outdoor.Category)

	joy, ok := byName["joy"]
	require.True(t, ok, "expected an emotion tag")
	assert.Equal(t, models.TagCategoryEmotion, joy.Category)

	for _, tag := range tags {
		assert.GreaterOrEqual(t, tag.Confidence, 0.0)
		assert.LessOrEqual(t, tag.Confidence, 1.0)
		assert.Equal(t, models.TagSourceDerived, tag.Source)
	}
}

func TestAnalyzeDropsLowConfidenceDetections(t *testing.T) {
	engine := testEngine()

	bundle := &models.DetectionBundle{
		Objects: []models.ObjectDetection{{Name: "dog", Confidence: 0.59}},
		Scenes:  []models.SceneDetection{{Name: "indoor", Confidence: 0.69}},
	}

	_, tags := engine.Analyze(bundle, models.FormatMetadata{})
	assert.Empty(t, tags)
}

func TestAnalyzeClampsMalformedConfidences(t *testing.T) {
	engine := testEngine()

	bundle := &models.DetectionBundle{
		Objects: []models.ObjectDetection{{Name: "tree", Confidence: 1.7}},
		Scenes:  []models.SceneDetection{{Name: "forest", Confidence: -0.2}},
	}

	analysis, tags := engine.Analyze(bundle, models.FormatMetadata{})
	require.Len(t, analysis.Objects, 1)
	assert.Equal(t, 1.0, analysis.Objects[0].Confidence)
	require.Len(t, analysis.Scenes, 1)
	assert.Equal(t, 0.0, analysis.Scenes[0].Confidence)

	// The clamped tree survives thresholding at 1.0; the clamped scene does not.
	require.Len(t, tags, 1)
	assert.Equal(t, "tree", tags[0].Name)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	engine := testEngine()

	bundle := &models.DetectionBundle{
		Objects: []models.ObjectDetection{{Name: "person", Confidence: 0.8}},
		Scenes:  []models.SceneDetection{{Name: "street", Confidence: 0.75}},
		Colors:  models.ColorSummary{Brightness: 0.45, Contrast: 0.3, Saturation: 0.5, DominantColors: []string{"blue"}},
	}

	a1, tags1 := engine.Analyze(bundle, models.FormatMetadata{})
	a2, tags2 := engine.Analyze(bundle, models.FormatMetadata{})

	assert.Equal(t, tags1, tags2)
	assert.Equal(t, a1.Quality, a2.Quality)
	assert.Equal(t, a1.DocValue, a2.DocValue)
}

func TestQualityIssues(t *testing.T) {
	engine := testEngine()

	dark := engine.quality(models.ColorSummary{Brightness: 0.05, Contrast: 0.1}, nil)
	assert.Contains(t, dark.Issues, "underexposed")
	assert.Contains(t, dark.Issues, "low-sharpness")

	bright := engine.quality(models.ColorSummary{Brightness: 0.95, Contrast: 0.5}, nil)
	assert.Contains(t, bright.Issues, "overexposed")

	good := engine.quality(models.ColorSummary{Brightness: 0.5, Contrast: 0.5}, nil)
	assert.Empty(t, good.Issues)
	assert.Equal(t, 1.0, good.Exposure)
}

func TestQualityHighISORaisesNoise(t *testing.T) {
	engine := testEngine()
	colors := models.ColorSummary{Brightness: 0.5, Contrast: 0.5}

	base := engine.quality(colors, nil)
	noisy := engine.quality(colors, &models.CameraInfo{ISO: 6400})

	assert.Greater(t, noisy.Noise, base.Noise)
	assert.Less(t, noisy.Overall, base.Overall)
}

func TestDocumentaryValuePlacements(t *testing.T) {
	engine := testEngine()

	// People plus an outdoor scene: the human-interest placement must clear
	// the cutoff, strongly architectural shots should add establishing.
	bundle := &models.DetectionBundle{
		Objects: []models.ObjectDetection{
			{Name: "person", Confidence: 0.95},
			{Name: "building", Confidence: 0.9},
		},
		Scenes: []models.SceneDetection{{Name: "outdoor", Confidence: 0.9}},
		Faces: []models.FaceObservation{
			{Confidence: 0.9, Emotions: []models.EmotionScore{{Name: "joy", Score: 0.85}}},
		},
	}

	dv := engine.documentaryValue(bundle)

	sections := make(map[string]models.Placement)
	for _, p := range dv.Placements {
		sections[p.Section] = p
	}

	hi, ok := sections["human-interest"]
	require.True(t, ok, "expected human-interest placement")
	assert.InDelta(t, 0.4, hi.Timing, 1e-9)

	est, ok := sections["establishing"]
	require.True(t, ok, "expected establishing placement")
	assert.InDelta(t, 0.1, est.Timing, 1e-9)

	for _, p := range dv.Placements {
		assert.GreaterOrEqual(t, p.Confidence, engine.cfg.PlacementMinConfidence)
	}

	assert.Greater(t, dv.NarrativeScore, 0.5)
	assert.Greater(t, dv.EmotionalImpact, 0.4)
}

func TestDocumentaryValueEmptyBundle(t *testing.T) {
	engine := testEngine()

	dv := engine.documentaryValue(&models.DetectionBundle{})

	assert.Zero(t, dv.NarrativeScore)
	assert.Zero(t, dv.EmotionalImpact)
	assert.Zero(t, dv.HistoricalValue)
	// Uniqueness keeps its floor plus the no-people bonus.
	assert.InDelta(t, 0.5, dv.Uniqueness, 1e-9)
	assert.Empty(t, dv.Placements)
}
