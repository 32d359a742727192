package models

import (
	"time"

	"github.com/google/uuid"
)

type CollectionType string

const (
	CollectionTypeManual CollectionType = "manual"
	CollectionTypeAuto   CollectionType = "auto"
)

// GroupDimension is the attribute an auto collection was grouped on.
type GroupDimension string

const (
	GroupByDate     GroupDimension = "date"
	GroupByLocation GroupDimension = "location"
	GroupByPerson   GroupDimension = "person"
)

type CollectionSettings struct {
	SortBy    string `json:"sort_by,omitempty"`
	SortDesc  bool   `json:"sort_desc,omitempty"`
	FilterTag string `json:"filter_tag,omitempty"`
	Layout    string `json:"layout,omitempty"`
}

// Collection groups assets either manually or by smart generation. Auto
// collections are regenerated wholesale; editing one by hand converts it to
// manual first.
type Collection struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	Type        CollectionType     `json:"type" db:"type"`
	Dimension   GroupDimension     `json:"dimension,omitempty" db:"dimension"`
	GroupKey    string             `json:"group_key,omitempty" db:"group_key"`
	Confidence  float64            `json:"confidence,omitempty" db:"confidence"`
	AssetIDs    []uuid.UUID        `json:"asset_ids" db:"asset_ids"`
	Settings    CollectionSettings `json:"settings" db:"settings"`
	GeneratedAt *time.Time         `json:"generated_at,omitempty" db:"generated_at"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}
