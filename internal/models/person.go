package models

import (
	"time"

	"github.com/google/uuid"
)

type PersonRelationship struct {
	PersonID uuid.UUID `json:"person_id"`
	Relation string    `json:"relation"`
}

// Person is a library-wide identity cluster over face detections. Persons are
// never silently destroyed: merging retires the source person and reassigns
// its faces, preserving the audit trail of past assignments.
type Person struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	Name          string               `json:"name" db:"name"`
	Aliases       []string             `json:"aliases,omitempty" db:"aliases"`
	FaceIDs       []uuid.UUID          `json:"face_ids" db:"face_ids"`
	FirstSeen     time.Time            `json:"first_seen" db:"first_seen"`
	LastSeen      time.Time            `json:"last_seen" db:"last_seen"`
	Verified      bool                 `json:"verified" db:"verified"`
	Retired       bool                 `json:"retired" db:"retired"`
	MergedInto    *uuid.UUID           `json:"merged_into,omitempty" db:"merged_into"`
	Relationships []PersonRelationship `json:"relationships,omitempty"`
	Centroid      []float32            `json:"-" db:"centroid"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at" db:"updated_at"`
}

func (p *Person) FaceCount() int {
	return len(p.FaceIDs)
}

func (p *Person) HasFace(id uuid.UUID) bool {
	for _, f := range p.FaceIDs {
		if f == id {
			return true
		}
	}
	return false
}
