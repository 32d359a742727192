package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
)

type SearchRequest struct {
	Text       string     `json:"text,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	PersonID   *uuid.UUID `json:"person_id,omitempty"`
	MinQuality *float64   `json:"min_quality,omitempty"`
	MaxQuality *float64   `json:"max_quality,omitempty"`
	SortBy     string     `json:"sort_by,omitempty"`
	SortAsc    bool       `json:"sort_asc,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

type SearchResponse struct {
	Total  int                  `json:"total"`
	Assets []*models.MediaAsset `json:"assets"`
}
