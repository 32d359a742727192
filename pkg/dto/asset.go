package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type UploadAssetResponse struct {
	ID         uuid.UUID          `json:"id"`
	Filename   string             `json:"filename"`
	Kind       models.MediaKind   `json:"kind"`
	Status     models.AssetStatus `json:"status"`
	UploadedAt time.Time          `json:"uploaded_at"`
}

type AssetResponse struct {
	Asset *models.MediaAsset `json:"asset"`
}

type ReenrichResponse struct {
	ID     uuid.UUID          `json:"id"`
	Status models.AssetStatus `json:"status"`
}
