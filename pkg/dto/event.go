package dto

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent is the envelope pushed to WebSocket clients on library changes.
type WSEvent struct {
	Kind      string      `json:"kind"` // asset_enriched, asset_removed, person_updated, collections_updated, job_finished
	AssetID   *uuid.UUID  `json:"asset_id,omitempty"`
	PersonID  *uuid.UUID  `json:"person_id,omitempty"`
	JobID     *uuid.UUID  `json:"job_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
