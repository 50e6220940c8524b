// Package conflict makes divergence between local and server copies
// visible and resolvable rather than silently lost.
package conflict

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
)

// Ledger persists ConflictRecords. Rows are created exclusively by the
// sync processor and deleted exclusively by resolution.
type Ledger struct {
	db db.DBTX
}

// NewLedger returns a Ledger bound to the given DBTX.
func NewLedger(dbtx db.DBTX) *Ledger {
	return &Ledger{db: dbtx}
}

// Record stores a detected divergence with full snapshots of both
// sides. A later divergence for the same entity replaces the earlier
// row, so at most one unresolved conflict exists per entity.
func (l *Ledger) Record(ctx context.Context, kind models.EntityKind, entityID models.UUID, localVersion, serverVersion json.RawMessage) (*models.ConflictRecord, error) {
	rec := &models.ConflictRecord{
		ID:            models.UUID(uuid.New().String()),
		Kind:          kind,
		EntityID:      entityID,
		LocalVersion:  localVersion,
		ServerVersion: serverVersion,
		DetectedAt:    time.Now().Unix(),
	}

	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM conflicts WHERE entity_kind = ? AND entity_id = ?`,
		string(kind), entityID); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to replace conflict", err)
	}

	query := `INSERT INTO conflicts (id, entity_kind, entity_id, local_version, server_version, detected_at)
			VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, query,
		rec.ID, string(rec.Kind), rec.EntityID,
		string(rec.LocalVersion), string(rec.ServerVersion), rec.DetectedAt); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to record conflict", err)
	}
	return rec, nil
}

// Get returns a conflict by id.
func (l *Ledger) Get(ctx context.Context, id models.UUID) (*models.ConflictRecord, error) {
	query := `SELECT id, entity_kind, entity_id, local_version, server_version, detected_at
			FROM conflicts WHERE id = ?`
	rec, err := scanConflict(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrConflictNotFound, fmt.Sprintf("conflict %s not found", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query conflict", err)
	}
	return rec, nil
}

// List returns all unresolved conflicts, oldest first.
func (l *Ledger) List(ctx context.Context) ([]*models.ConflictRecord, error) {
	query := `SELECT id, entity_kind, entity_id, local_version, server_version, detected_at
			FROM conflicts ORDER BY detected_at, rowid`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list conflicts", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan conflict", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read conflicts", err)
	}
	return result, nil
}

// Delete removes a resolved conflict.
func (l *Ledger) Delete(ctx context.Context, id models.UUID) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete conflict", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*models.ConflictRecord, error) {
	rec := &models.ConflictRecord{}
	var kind, local, server string
	if err := row.Scan(&rec.ID, &kind, &rec.EntityID, &local, &server, &rec.DetectedAt); err != nil {
		return nil, err
	}
	rec.Kind = models.EntityKind(kind)
	rec.LocalVersion = json.RawMessage(local)
	rec.ServerVersion = json.RawMessage(server)
	return rec, nil
}
