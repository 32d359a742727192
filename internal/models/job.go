package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchOperation string

const (
	BatchOpEnrich              BatchOperation = "enrich"
	BatchOpReenrich            BatchOperation = "reenrich"
	BatchOpRetag               BatchOperation = "retag"
	BatchOpGenerateCollections BatchOperation = "generate_collections"
	BatchOpExport              BatchOperation = "export"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// BatchItemResult is the terminal outcome for one targeted asset.
type BatchItemResult struct {
	AssetID    uuid.UUID `json:"asset_id"`
	FinishedAt time.Time `json:"finished_at"`
}

type BatchItemError struct {
	AssetID uuid.UUID `json:"asset_id"`
	Error   string    `json:"error"`
}

// BatchJob tracks one batch operation over a set of assets. Items fail
// independently; the job reaches completed once every item is terminal,
// even when all of them failed. JobStatusFailed is reserved for faults of
// the queue itself, so callers can tell "nothing succeeded" from "the
// batch never ran".
type BatchJob struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Operation   BatchOperation     `json:"operation" db:"operation"`
	AssetIDs    []uuid.UUID        `json:"asset_ids" db:"asset_ids"`
	Priority    int                `json:"priority" db:"priority"`
	Status      JobStatus          `json:"status" db:"status"`
	Progress    int                `json:"progress" db:"progress"` // 0..100, fraction of items terminal
	Results     []*BatchItemResult `json:"results" db:"results"`   // aligned to AssetIDs, nil for failed items
	Errors      []BatchItemError   `json:"errors,omitempty" db:"errors"`
	Cancelled   bool               `json:"cancelled,omitempty" db:"cancelled"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}
