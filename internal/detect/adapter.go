package detect

import (
	"context"
	"errors"

	"github.com/your-org/medialib/internal/models"
)

var (
	// ErrAdapterUnavailable means the adapter itself could not run
	// (model not loaded, backing service down). Transient.
	ErrAdapterUnavailable = errors.New("detection adapter unavailable")

	// ErrUnsupportedInput means the adapter cannot analyze this media kind
	// or payload. Not retryable.
	ErrUnsupportedInput = errors.New("unsupported input for detection")
)

// Adapter is the boundary to a perceptual detector. Implementations normalize
// whatever their backend emits into a DetectionBundle; the pipeline treats
// them as pluggable signal sources.
type Adapter interface {
	Detect(ctx context.Context, data []byte, kind models.MediaKind) (*models.DetectionBundle, error)
}
