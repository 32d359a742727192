package models

import (
	"time"

	"github.com/google/uuid"
)

// BundleSchemaVersion is the detection schema the core understands. Bundles
// with a newer version may carry detection kinds the scoring engine skips.
const BundleSchemaVersion = 1

// BoundingBox uses normalized 0..1 coordinates relative to the frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ObjectDetection struct {
	Name       string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

type SceneDetection struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// FaceObservation is a raw detector output for one face, before identity
// resolution.
type FaceObservation struct {
	Box              BoundingBox    `json:"box"`
	Confidence       float64        `json:"confidence"`
	Landmarks        []Point        `json:"landmarks,omitempty"`
	Emotions         []EmotionScore `json:"emotions,omitempty"`
	Age              int            `json:"age,omitempty"`
	Gender           string         `json:"gender,omitempty"`
	GenderConfidence float64        `json:"gender_confidence,omitempty"`
	Embedding        []float32      `json:"embedding,omitempty"`
}

type ColorSummary struct {
	DominantColors []string `json:"dominant_colors,omitempty"`
	Palette        []string `json:"palette,omitempty"`
	Brightness     float64  `json:"brightness"`
	Contrast       float64  `json:"contrast"`
	Saturation     float64  `json:"saturation"`
	Temperature    float64  `json:"temperature"` // <0.5 cool, >0.5 warm
}

// DetectionBundle is the normalized output of a detection adapter: one struct
// per detection kind rather than a duck-typed payload, so unknown kinds in a
// newer schema are ignored instead of crashing the scoring engine.
type DetectionBundle struct {
	SchemaVersion int               `json:"schema_version"`
	Objects       []ObjectDetection `json:"objects,omitempty"`
	Scenes        []SceneDetection  `json:"scenes,omitempty"`
	Faces         []FaceObservation `json:"faces,omitempty"`
	Colors        ColorSummary      `json:"colors"`
}

// FaceDetection is a per-asset face record. PersonID is a non-owning link
// into the person registry; the person's lifetime is independent.
type FaceDetection struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	AssetID          uuid.UUID      `json:"asset_id" db:"asset_id"`
	Box              BoundingBox    `json:"box" db:"box"`
	Confidence       float64        `json:"confidence" db:"confidence"`
	Landmarks        []Point        `json:"landmarks,omitempty"`
	Emotions         []EmotionScore `json:"emotions,omitempty"`
	Age              int            `json:"age,omitempty" db:"age"`
	Gender           string         `json:"gender,omitempty" db:"gender"`
	GenderConfidence float64        `json:"gender_confidence,omitempty" db:"gender_confidence"`
	Embedding        []float32      `json:"-" db:"embedding"`
	PersonID         *uuid.UUID     `json:"person_id,omitempty" db:"person_id"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}
