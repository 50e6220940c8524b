package conflict

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/logging"
	"github.com/teamgrid/workspace-client/internal/models"
	"github.com/teamgrid/workspace-client/internal/queue"
	"github.com/teamgrid/workspace-client/internal/store"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	// StrategyLocal keeps the local snapshot and re-enqueues it.
	StrategyLocal Strategy = "local"
	// StrategyServer overwrites the local record with the server
	// snapshot and marks it synced.
	StrategyServer Strategy = "server"
	// StrategyMerge combines both snapshots, preferring non-empty
	// local fields, and re-enqueues the result.
	StrategyMerge Strategy = "merge"
)

// ParseStrategy converts a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocal, StrategyServer, StrategyMerge:
		return Strategy(s), nil
	}
	return "", apperrors.New(apperrors.ErrConflictStrategy, fmt.Sprintf("unknown strategy %q", s))
}

// Detect reports whether local and server payloads have diverged:
// both sides present and their modification markers differ. Absence of
// either side is a create or a delete, not a conflict.
func Detect(local, server json.RawMessage) bool {
	if len(local) == 0 || len(server) == 0 {
		return false
	}
	localMarker, err := models.ModificationMarker(local)
	if err != nil {
		return false
	}
	serverMarker, err := models.ModificationMarker(server)
	if err != nil {
		return false
	}
	return localMarker != serverMarker
}

// Resolver applies an explicit resolution to a recorded conflict. Every
// strategy deletes the ConflictRecord on completion.
type Resolver struct {
	store       *store.Store
	queue       *queue.Queue
	ledger      *Ledger
	maxAttempts int
}

// NewResolver creates a Resolver over the given collections.
func NewResolver(st *store.Store, q *queue.Queue, ledger *Ledger, maxAttempts int) *Resolver {
	return &Resolver{
		store:       st,
		queue:       q,
		ledger:      ledger,
		maxAttempts: maxAttempts,
	}
}

// Resolve applies the chosen strategy to the conflict with the given
// id. Storage failures propagate and leave the conflict in place.
func (r *Resolver) Resolve(ctx context.Context, conflictID models.UUID, strategy Strategy) error {
	rec, err := r.ledger.Get(ctx, conflictID)
	if err != nil {
		return err
	}

	switch strategy {
	case StrategyLocal:
		if err := r.applyLocal(ctx, rec, rec.LocalVersion); err != nil {
			return err
		}
	case StrategyServer:
		if err := r.store.OverwriteSynced(ctx, rec.Kind, rec.EntityID, rec.ServerVersion); err != nil {
			return err
		}
	case StrategyMerge:
		merged, err := Merge(rec.LocalVersion, rec.ServerVersion)
		if err != nil {
			return err
		}
		if err := r.applyLocal(ctx, rec, merged); err != nil {
			return err
		}
	default:
		return apperrors.New(apperrors.ErrConflictStrategy, fmt.Sprintf("unknown strategy %q", strategy))
	}

	if err := r.ledger.Delete(ctx, conflictID); err != nil {
		return err
	}

	logging.Info("conflict resolved", map[string]interface{}{
		"conflict_id": rec.ID,
		"entity_kind": rec.Kind,
		"entity_id":   rec.EntityID,
		"strategy":    strategy,
	})
	return nil
}

// applyLocal writes the winning payload to the entity store as unsynced
// and re-enqueues it for delivery.
func (r *Resolver) applyLocal(ctx context.Context, rec *models.ConflictRecord, payload json.RawMessage) error {
	if _, err := r.store.Save(ctx, rec.Kind, payload); err != nil {
		return err
	}
	action := models.FallbackAction(rec.Kind, false)
	if _, err := r.queue.Enqueue(ctx, action, rec.Kind, payload, r.maxAttempts); err != nil {
		return err
	}
	return nil
}
