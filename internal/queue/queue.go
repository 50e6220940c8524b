// Package queue provides the persistent staging area for outbound
// mutations awaiting delivery.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
)

// Queue persists SyncQueueItems in enqueue order. Removal and attempt
// accounting are the processor's job; everything else appends or reads.
type Queue struct {
	db db.DBTX
}

// New returns a Queue bound to the given DBTX.
func New(dbtx db.DBTX) *Queue {
	return &Queue{db: dbtx}
}

// WithTx returns a Queue bound to the given transaction.
func (q *Queue) WithTx(tx *sql.Tx) *Queue {
	return &Queue{db: tx}
}

// Enqueue appends a mutation with a fresh retry budget. The payload is
// snapshotted as-is; later writes to the record do not change it.
// Pairs the remote API has no endpoint for are rejected here rather
// than burning retries in the processor.
func (q *Queue) Enqueue(ctx context.Context, action models.SyncAction, kind models.EntityKind, payload json.RawMessage, maxAttempts int) (*models.SyncQueueItem, error) {
	if !action.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown action %q", action))
	}
	if !kind.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind %q", kind))
	}
	if !models.SupportsAction(kind, action) {
		return nil, apperrors.New(apperrors.ErrQueueUnsupported,
			fmt.Sprintf("remote API has no %s endpoint for %s", action, kind))
	}
	if maxAttempts < 1 {
		maxAttempts = models.DefaultMaxAttempts
	}

	entityID, err := models.EntityID(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "payload must carry an id", err)
	}

	item := &models.SyncQueueItem{
		ID:          models.UUID(uuid.New().String()),
		Action:      action,
		Kind:        kind,
		EntityID:    entityID,
		Payload:     payload,
		EnqueuedAt:  time.Now().Unix(),
		Attempts:    0,
		MaxAttempts: maxAttempts,
	}

	query := `INSERT INTO sync_queue (id, action, entity_kind, entity_id, payload, enqueued_at, attempts, max_attempts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, query,
		item.ID, string(item.Action), string(item.Kind), item.EntityID,
		string(item.Payload), item.EnqueuedAt, item.Attempts, item.MaxAttempts); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to enqueue item", err)
	}

	return item, nil
}

// Drain returns the current queue contents in enqueue order without
// removing anything. rowid breaks ties for items enqueued within the
// same second.
func (q *Queue) Drain(ctx context.Context) ([]*models.SyncQueueItem, error) {
	query := `SELECT id, action, entity_kind, entity_id, payload, enqueued_at, attempts, max_attempts
			FROM sync_queue ORDER BY enqueued_at, rowid`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read queue", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		item := &models.SyncQueueItem{}
		var action, kind, payload string
		if err := rows.Scan(&item.ID, &action, &kind, &item.EntityID, &payload,
			&item.EnqueuedAt, &item.Attempts, &item.MaxAttempts); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan queue item", err)
		}
		item.Action = models.SyncAction(action)
		item.Kind = models.EntityKind(kind)
		item.Payload = json.RawMessage(payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read queue", err)
	}
	return items, nil
}

// Remove deletes a delivered or exhausted item.
func (q *Queue) Remove(ctx context.Context, id models.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove queue item", err)
	}
	return nil
}

// IncrementAttempts bumps an item's attempt counter and returns the new
// value. Dropping exhausted items is the processor's decision.
func (q *Queue) IncrementAttempts(ctx context.Context, id models.UUID) (int, error) {
	if _, err := q.db.ExecContext(ctx, `UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to increment attempts", err)
	}
	var attempts int
	if err := q.db.QueryRowContext(ctx, `SELECT attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read attempts", err)
	}
	return attempts, nil
}

// Size returns the number of queued items.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count queue", err)
	}
	return n, nil
}

// HasPendingFor reports whether any queued mutation targets the given
// entity. Boot reconciliation uses this to avoid duplicate enqueues.
func (q *Queue) HasPendingFor(ctx context.Context, kind models.EntityKind, entityID models.UUID) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM sync_queue WHERE entity_kind = ? AND entity_id = ?`
	if err := q.db.QueryRowContext(ctx, query, string(kind), entityID).Scan(&n); err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to query pending items", err)
	}
	return n > 0, nil
}
