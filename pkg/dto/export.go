package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type ExportRequest struct {
	AssetIDs     []uuid.UUID `json:"asset_ids,omitempty"`     // empty exports the whole library
	CollectionID *uuid.UUID  `json:"collection_id,omitempty"` // export one collection's members
	IncludeFaces bool        `json:"include_faces,omitempty"`
}

// ExportDocument is the self-contained library snapshot produced by the
// export endpoint.
type ExportDocument struct {
	SchemaVersion int                  `json:"schema_version"`
	ExportedAt    time.Time            `json:"exported_at"`
	Assets        []*models.MediaAsset `json:"assets"`
	Persons       []models.Person      `json:"persons,omitempty"`
	Collections   []*models.Collection `json:"collections,omitempty"`
}
