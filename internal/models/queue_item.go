package models

import (
	"encoding/json"
	"time"
)

// SyncAction is the kind of mutation a queue item carries.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Valid reports whether a is a known sync action.
func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// SupportsAction reports whether the remote API has an endpoint for
// this (kind, action) pair. Messages cannot be edited, files have no
// delete endpoint, and the user profile only supports update.
func SupportsAction(kind EntityKind, action SyncAction) bool {
	switch kind {
	case KindMessage:
		return action == ActionCreate || action == ActionDelete
	case KindFile:
		return action == ActionCreate
	case KindEvent:
		return action.Valid()
	case KindUser:
		return action == ActionUpdate
	}
	return false
}

// FallbackAction returns the action used when re-deriving a queue item
// from an unsynced record during boot reconciliation.
func FallbackAction(kind EntityKind, deleted bool) SyncAction {
	if deleted {
		return ActionDelete
	}
	if SupportsAction(kind, ActionCreate) {
		return ActionCreate
	}
	return ActionUpdate
}

// DefaultMaxAttempts is the retry budget for a queue item. Once
// Attempts reaches it the item is dropped from the queue and the record
// stays unsynced.
const DefaultMaxAttempts = 3

// SyncQueueItem is one pending outbound mutation. Payload is the
// snapshot taken at enqueue time, not a reference to the live record.
type SyncQueueItem struct {
	ID          UUID            `db:"id" json:"id"`
	Action      SyncAction      `db:"action" json:"action"`
	Kind        EntityKind      `db:"entity_kind" json:"entity_kind"`
	EntityID    UUID            `db:"entity_id" json:"entity_id"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt  int64           `db:"enqueued_at" json:"enqueued_at"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
}

// EnqueuedTime returns EnqueuedAt as time.Time.
func (i *SyncQueueItem) EnqueuedTime() time.Time {
	return time.Unix(i.EnqueuedAt, 0)
}

// Exhausted reports whether the retry budget has been used up.
func (i *SyncQueueItem) Exhausted() bool {
	return i.Attempts >= i.MaxAttempts
}
