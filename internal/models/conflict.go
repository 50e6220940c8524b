package models

import (
	"encoding/json"
	"time"
)

// ConflictRecord preserves both sides of a detected divergence. A row
// exists only while the conflict is unresolved; resolving it writes the
// chosen payload back to the entity store and deletes the row.
type ConflictRecord struct {
	ID            UUID            `db:"id" json:"id"`
	Kind          EntityKind      `db:"entity_kind" json:"entity_kind"`
	EntityID      UUID            `db:"entity_id" json:"entity_id"`
	LocalVersion  json.RawMessage `db:"local_version" json:"local_version"`
	ServerVersion json.RawMessage `db:"server_version" json:"server_version"`
	DetectedAt    int64           `db:"detected_at" json:"detected_at"`
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *ConflictRecord) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
