package models

import (
	"encoding/json"
	"time"
)

// OfflineRecord is a locally-known record of one entity kind, together
// with its sync status. Records are created on first local write,
// overwritten in place on later writes, and removed only after a queued
// delete has been delivered.
type OfflineRecord struct {
	ID             UUID            `db:"id" json:"id"`
	Kind           EntityKind      `db:"entity_kind" json:"entity_kind"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	LocalTimestamp int64           `db:"local_timestamp" json:"local_timestamp"`
	Synced         bool            `db:"synced" json:"synced"`
	Deleted        bool            `db:"deleted" json:"deleted"`
}

// LocalTime returns LocalTimestamp as time.Time.
func (r *OfflineRecord) LocalTime() time.Time {
	return time.Unix(r.LocalTimestamp, 0)
}

// ModificationMarker returns the payload's modification timestamp.
func (r *OfflineRecord) ModificationMarker() (int64, error) {
	return ModificationMarker(r.Payload)
}

// Touch updates the local write timestamp and resets the synced flag.
func (r *OfflineRecord) Touch() {
	r.LocalTimestamp = time.Now().Unix()
	r.Synced = false
}
