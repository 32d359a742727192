package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type CreateCollectionRequest struct {
	Name     string                    `json:"name" binding:"required"`
	AssetIDs []uuid.UUID               `json:"asset_ids,omitempty"`
	Settings models.CollectionSettings `json:"settings,omitempty"`
}

type CollectionListResponse struct {
	Collections []*models.Collection `json:"collections"`
}

type GenerateCollectionsResponse struct {
	Generated   int                  `json:"generated"`
	Collections []*models.Collection `json:"collections"`
}
