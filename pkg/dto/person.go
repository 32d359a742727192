package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type UpdatePersonRequest struct {
	Name     *string  `json:"name,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Verified *bool    `json:"verified,omitempty"`
}

type MergePersonsRequest struct {
	SourceID uuid.UUID `json:"source_id" binding:"required"`
}

type PersonResponse struct {
	Person *models.Person `json:"person"`
}

type PersonListResponse struct {
	Persons []models.Person `json:"persons"`
}
