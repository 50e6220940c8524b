// Package store provides the durable entity store: the four local
// collections plus their sync status.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
)

// Store persists OfflineRecords for all four entity kinds. It is bound
// to a DBTX so the engine can run a save and an enqueue inside one
// transaction.
type Store struct {
	db db.DBTX
}

// New returns a Store bound to the given DBTX.
func New(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Save inserts or overwrites the record keyed by the payload's id and
// marks it unsynced. The caller is responsible for enqueueing the
// corresponding mutation; superseding an older unsynced write is done
// by this overwrite, not by appending.
func (s *Store) Save(ctx context.Context, kind models.EntityKind, payload json.RawMessage) (models.UUID, error) {
	if !kind.Valid() {
		return "", apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind %q", kind))
	}

	id, err := models.EntityID(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "payload must carry an id", err)
	}

	naturalTS, err := models.NaturalTimestamp(kind, payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "payload is not decodable", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, payload, natural_ts, local_timestamp, synced, deleted)
			VALUES (?, ?, ?, ?, 0, 0)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
				natural_ts = excluded.natural_ts,
				local_timestamp = excluded.local_timestamp,
				synced = 0,
				deleted = 0`, kind.Table())
	if _, err := s.db.ExecContext(ctx, query, id, string(payload), naturalTS, time.Now().Unix()); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to upsert record", err)
	}
	return id, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, kind models.EntityKind, id models.UUID) (*models.OfflineRecord, error) {
	query := fmt.Sprintf(`SELECT id, payload, local_timestamp, synced, deleted FROM %s WHERE id = ?`, kind.Table())
	rec, err := s.scanRecord(kind, s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s %s not found", kind, id))
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query record", err)
	}
	return rec, nil
}

// List returns all non-deleted records of a kind ordered by the kind's
// natural timestamp field. Each call re-reads current state.
func (s *Store) List(ctx context.Context, kind models.EntityKind) ([]*models.OfflineRecord, error) {
	direction := "ASC"
	if models.NaturalOrderDescending(kind) {
		direction = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, payload, local_timestamp, synced, deleted FROM %s
			WHERE deleted = 0 ORDER BY natural_ts %s`, kind.Table(), direction)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list records", err)
	}
	defer rows.Close()

	return s.collectRecords(kind, rows)
}

// MarkDeleted tombstones a record locally. The record stays queryable
// through Get until the queued delete is delivered and Purge runs.
func (s *Store) MarkDeleted(ctx context.Context, kind models.EntityKind, id models.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted = 1, synced = 0, local_timestamp = ? WHERE id = ?`, kind.Table())
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark record deleted", err)
	}
	return nil
}

// Purge removes a tombstoned record after its delete was delivered.
func (s *Store) Purge(ctx context.Context, kind models.EntityKind, id models.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, kind.Table())
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to purge record", err)
	}
	return nil
}

// MarkSynced flags a record as acknowledged by the server.
func (s *Store) MarkSynced(ctx context.Context, kind models.EntityKind, id models.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET synced = 1 WHERE id = ?`, kind.Table())
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark record synced", err)
	}
	return nil
}

// OverwriteSynced replaces a record's payload and marks it synced. Used
// by conflict resolution when the server copy wins.
func (s *Store) OverwriteSynced(ctx context.Context, kind models.EntityKind, id models.UUID, payload json.RawMessage) error {
	naturalTS, err := models.NaturalTimestamp(kind, payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "payload is not decodable", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, payload, natural_ts, local_timestamp, synced, deleted)
			VALUES (?, ?, ?, ?, 1, 0)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
				natural_ts = excluded.natural_ts,
				local_timestamp = excluded.local_timestamp,
				synced = 1,
				deleted = 0`, kind.Table())
	if _, err := s.db.ExecContext(ctx, query, id, string(payload), naturalTS, time.Now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to overwrite record", err)
	}
	return nil
}

// ListUnsynced returns every record across all kinds with synced=false,
// including tombstones. This backs the "failed to sync" query and boot
// reconciliation.
func (s *Store) ListUnsynced(ctx context.Context) ([]*models.OfflineRecord, error) {
	var result []*models.OfflineRecord
	for _, kind := range models.Kinds() {
		query := fmt.Sprintf(`SELECT id, payload, local_timestamp, synced, deleted FROM %s
				WHERE synced = 0 ORDER BY local_timestamp`, kind.Table())
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list unsynced records", err)
		}
		records, err := s.collectRecords(kind, rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		result = append(result, records...)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(kind models.EntityKind, row rowScanner) (*models.OfflineRecord, error) {
	rec := &models.OfflineRecord{Kind: kind}
	var payload string
	if err := row.Scan(&rec.ID, &payload, &rec.LocalTimestamp, &rec.Synced, &rec.Deleted); err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}

func (s *Store) collectRecords(kind models.EntityKind, rows *sql.Rows) ([]*models.OfflineRecord, error) {
	var result []*models.OfflineRecord
	for rows.Next() {
		rec, err := s.scanRecord(kind, rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan record", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read records", err)
	}
	return result, nil
}
