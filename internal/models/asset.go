package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	MediaKindImage    MediaKind = "image"
	MediaKindVideo    MediaKind = "video"
	MediaKindAudio    MediaKind = "audio"
	MediaKindDocument MediaKind = "document"
)

type AssetStatus string

const (
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusReady      AssetStatus = "ready"
	AssetStatusError      AssetStatus = "error"
)

type TagCategory string

const (
	TagCategoryObject    TagCategory = "object"
	TagCategoryPerson    TagCategory = "person"
	TagCategoryLocation  TagCategory = "location"
	TagCategoryEmotion   TagCategory = "emotion"
	TagCategoryColor     TagCategory = "color"
	TagCategoryStyle     TagCategory = "style"
	TagCategoryTechnical TagCategory = "technical"
	TagCategoryCustom    TagCategory = "custom"
)

type TagSource string

const (
	TagSourceDerived TagSource = "derived"
	TagSourceManual  TagSource = "manual"
)

// Tag is a confidence-weighted label on an asset. An asset never holds two
// tags with the same (name, category) pair.
type Tag struct {
	Name       string      `json:"name" db:"name"`
	Category   TagCategory `json:"category" db:"category"`
	Confidence float64     `json:"confidence" db:"confidence"`
	Source     TagSource   `json:"source" db:"source"`
	Color      string      `json:"color,omitempty" db:"color"`
}

type VersionKind string

const (
	VersionOriginal  VersionKind = "original"
	VersionEdited    VersionKind = "edited"
	VersionThumbnail VersionKind = "thumbnail"
)

// MediaVersion points at one stored rendition of the asset in object storage.
type MediaVersion struct {
	Kind      VersionKind `json:"kind"`
	ObjectKey string      `json:"object_key"`
	SizeBytes int64       `json:"size_bytes"`
	CreatedAt time.Time   `json:"created_at"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

type CameraInfo struct {
	Make         string  `json:"make,omitempty"`
	Model        string  `json:"model,omitempty"`
	ISO          int     `json:"iso,omitempty"`
	Aperture     float64 `json:"aperture,omitempty"`
	ShutterSpeed string  `json:"shutter_speed,omitempty"`
	FocalLength  float64 `json:"focal_length,omitempty"`
}

// FormatMetadata holds kind-dependent container metadata. Zero values mean
// the attribute does not apply to this media kind.
type FormatMetadata struct {
	MimeType    string      `json:"mime_type"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	DurationSec float64     `json:"duration_sec,omitempty"`
	Location    *GeoPoint   `json:"location,omitempty"`
	Camera      *CameraInfo `json:"camera,omitempty"`
}

// QualityMetrics are derived per-asset on a 0..1 scale.
type QualityMetrics struct {
	Sharpness float64  `json:"sharpness"`
	Exposure  float64  `json:"exposure"`
	Noise     float64  `json:"noise"`
	Overall   float64  `json:"overall"`
	Issues    []string `json:"issues,omitempty"`
}

// Placement is a recommendation for where an asset fits in a documentary cut.
type Placement struct {
	Section    string  `json:"section"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Timing     float64 `json:"timing"` // normalized 0..1 position in the cut
}

// DocumentaryValue scores an asset's usefulness for narrative storytelling.
type DocumentaryValue struct {
	NarrativeScore  float64     `json:"narrative_score"`
	EmotionalImpact float64     `json:"emotional_impact"`
	HistoricalValue float64     `json:"historical_value"`
	Uniqueness      float64     `json:"uniqueness"`
	Placements      []Placement `json:"placements,omitempty"`
}

// MediaAnalysis is derived wholesale by the enrichment pipeline and never
// patched in place; re-enrichment replaces the entire record.
type MediaAnalysis struct {
	Objects     []ObjectDetection `json:"objects,omitempty"`
	Scenes      []SceneDetection  `json:"scenes,omitempty"`
	Colors      ColorSummary      `json:"colors"`
	Description string            `json:"description,omitempty"`
	Quality     QualityMetrics    `json:"quality"`
	DocValue    DocumentaryValue  `json:"documentary_value"`
	AnalyzedAt  time.Time         `json:"analyzed_at"`
}

// MediaAsset is one ingested file and its derived state.
//
// Invariant: StatusReady implies Analysis != nil and every tag confidence is
// within [0,1]; StatusError implies Analysis == nil.
type MediaAsset struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Filename    string          `json:"filename" db:"filename"`
	Kind        MediaKind       `json:"kind" db:"kind"`
	SizeBytes   int64           `json:"size_bytes" db:"size_bytes"`
	CapturedAt  *time.Time      `json:"captured_at,omitempty" db:"captured_at"`
	UploadedAt  time.Time       `json:"uploaded_at" db:"uploaded_at"`
	Metadata    FormatMetadata  `json:"metadata" db:"metadata"`
	Status      AssetStatus     `json:"status" db:"status"`
	ErrorReason string          `json:"error_reason,omitempty" db:"error_reason"`
	Tags        []Tag           `json:"tags,omitempty" db:"tags"`
	Faces       []FaceDetection `json:"faces,omitempty"`
	Analysis    *MediaAnalysis  `json:"analysis,omitempty" db:"analysis"`
	Versions    []MediaVersion  `json:"versions,omitempty" db:"versions"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CaptureTime returns the best-known capture moment, falling back to upload.
func (a *MediaAsset) CaptureTime() time.Time {
	if a.CapturedAt != nil {
		return *a.CapturedAt
	}
	return a.UploadedAt
}

// SetTag inserts or replaces the tag with the same (name, category) pair.
func (a *MediaAsset) SetTag(t Tag) {
	for i, existing := range a.Tags {
		if existing.Name == t.Name && existing.Category == t.Category {
			a.Tags[i] = t
			return
		}
	}
	a.Tags = append(a.Tags, t)
}

// EnrichmentTask is the message published to NATS for worker processing.
type EnrichmentTask struct {
	AssetID    uuid.UUID `json:"asset_id"`
	Filename   string    `json:"filename"`
	Kind       MediaKind `json:"kind"`
	ObjectKey  string    `json:"object_key"` // MinIO key of the original bytes
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
	Attempt    int       `json:"attempt,omitempty"`
}
