package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type SubmitBatchRequest struct {
	Operation models.BatchOperation `json:"operation" binding:"required"`
	AssetIDs  []uuid.UUID           `json:"asset_ids" binding:"required"`
	Priority  int                   `json:"priority,omitempty"`
}

type BatchJobResponse struct {
	Job *models.BatchJob `json:"job"`
}

type BatchJobListResponse struct {
	Jobs []*models.BatchJob `json:"jobs"`
}
