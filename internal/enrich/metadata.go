package enrich

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/your-org/medialib/internal/models"
)

var supportedImageMimes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// kindForMime maps a mime type to its media kind, or "" when the format is
// not handled at all.
func kindForMime(mime string) models.MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaKindImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaKindVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaKindAudio
	case mime == "application/pdf", strings.HasPrefix(mime, "text/"):
		return models.MediaKindDocument
	default:
		return ""
	}
}

// extractMetadata reads format metadata out of the raw bytes. For images the
// pixel dimensions come from the decoded header; a header that will not
// decode is corrupt input.
func extractMetadata(data []byte, task *models.EnrichmentTask) (models.FormatMetadata, error) {
	meta := models.FormatMetadata{MimeType: task.MimeType}

	kind := kindForMime(task.MimeType)
	if kind == "" || kind != task.Kind {
		return meta, fmt.Errorf("%w: mime %q for kind %q", ErrUnsupportedFormat, task.MimeType, task.Kind)
	}

	if kind == models.MediaKindImage {
		if _, ok := supportedImageMimes[task.MimeType]; !ok {
			return meta, fmt.Errorf("%w: image mime %q", ErrUnsupportedFormat, task.MimeType)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return meta, fmt.Errorf("%w: decode image header: %v", ErrCorruptInput, err)
		}
		meta.Width = cfg.Width
		meta.Height = cfg.Height
	}

	return meta, nil
}
