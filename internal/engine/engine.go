// Package engine wires the entity store, sync queue, connectivity
// monitor, processor, and conflict ledger into the caller-facing
// offline-first API.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamgrid/workspace-client/internal/api"
	"github.com/teamgrid/workspace-client/internal/config"
	"github.com/teamgrid/workspace-client/internal/conflict"
	"github.com/teamgrid/workspace-client/internal/connectivity"
	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/logging"
	"github.com/teamgrid/workspace-client/internal/models"
	"github.com/teamgrid/workspace-client/internal/processor"
	"github.com/teamgrid/workspace-client/internal/queue"
	"github.com/teamgrid/workspace-client/internal/session"
	"github.com/teamgrid/workspace-client/internal/store"
)

// Engine is one session's sync engine instance. All shared state (the
// connectivity value, the in-flight pass guard) lives on this instance,
// never in package globals.
type Engine struct {
	cfg *config.Config

	database  *db.DB
	store     *store.Store
	queue     *queue.Queue
	ledger    *conflict.Ledger
	resolver  *conflict.Resolver
	session   *session.Store
	processor *processor.Processor
	monitor   *connectivity.Monitor
}

// Option overrides a collaborator, used by tests to simulate the remote
// API and connectivity.
type Option func(*options)

type options struct {
	remote processor.Remote
	prober connectivity.Prober
}

// WithRemote substitutes the remote used by the processor.
func WithRemote(r processor.Remote) Option {
	return func(o *options) { o.remote = r }
}

// WithProber substitutes the reachability prober.
func WithProber(p connectivity.Prober) Option {
	return func(o *options) { o.prober = p }
}

// New opens the local database, applies migrations, and assembles the
// engine. Call Start to begin connectivity monitoring.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open sync database", err)
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations", err)
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}

	e := &Engine{
		cfg:      cfg,
		database: database,
		store:    store.New(database),
		queue:    queue.New(database),
		ledger:   conflict.NewLedger(database),
		session:  session.New(database),
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, e.session)

	remote := o.remote
	if remote == nil {
		remote = client
	}
	prober := o.prober
	if prober == nil {
		prober = client
	}

	e.resolver = conflict.NewResolver(e.store, e.queue, e.ledger, cfg.MaxAttempts)
	e.processor = processor.New(e.store, e.queue, e.ledger, remote)
	e.monitor = connectivity.NewMonitor(prober, connectivity.Config{
		ProbeMin:  cfg.ProbeMin,
		ProbeMax:  cfg.ProbeMax,
		EventsURL: cfg.EventsURL,
	})

	// catch up queued work on every reachable edge
	e.monitor.OnOnline(func() {
		go func() {
			if _, err := e.SyncNow(context.Background()); err != nil {
				logging.Error("sync after reconnect failed", err)
			}
		}()
	})

	return e, nil
}

// Start reconciles queue state from unsynced records and begins
// connectivity monitoring. The monitor probes immediately, so anything
// queued while the process was down gets a flush attempt on boot.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Reconcile(ctx); err != nil {
		return err
	}
	e.monitor.Start(ctx)
	return nil
}

// Stop shuts down connectivity monitoring. An in-flight drain pass is
// not cancelled; it finishes on its own.
func (e *Engine) Stop() {
	e.monitor.Stop()
}

// Close releases the local database.
func (e *Engine) Close() error {
	return e.database.Close()
}

// SetToken stores the bearer credential used for remote calls.
func (e *Engine) SetToken(ctx context.Context, token string) error {
	return e.session.SetToken(ctx, token)
}

// IsOnline reports current reachability.
func (e *Engine) IsOnline() bool {
	return e.monitor.IsOnline()
}

// Monitor exposes the connectivity monitor, mainly so callers and tests
// can feed simulated reachability observations.
func (e *Engine) Monitor() *connectivity.Monitor {
	return e.monitor
}

// Save persists a record locally as unsynced and enqueues the matching
// mutation in the same transaction. If the device is online a drain
// pass is triggered; offline the mutation just waits.
func (e *Engine) Save(ctx context.Context, kind models.EntityKind, payload json.RawMessage) (models.UUID, error) {
	payload, err := normalizePayload(payload)
	if err != nil {
		return "", err
	}

	id, err := models.EntityID(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "payload must carry an id", err)
	}

	existing, err := e.store.Get(ctx, kind, id)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return "", err
	}

	action := chooseAction(kind, existing != nil && !existing.Deleted)

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.store.WithTx(tx).Save(ctx, kind, payload); err != nil {
			return err
		}
		_, err := e.queue.WithTx(tx).Enqueue(ctx, action, kind, payload, e.cfg.MaxAttempts)
		return err
	})
	if err != nil {
		return "", err
	}

	e.dispatchIfOnline()
	return id, nil
}

// Get returns one record, tombstoned or not.
func (e *Engine) Get(ctx context.Context, kind models.EntityKind, id models.UUID) (*models.OfflineRecord, error) {
	return e.store.Get(ctx, kind, id)
}

// List returns all live records of a kind in natural order.
func (e *Engine) List(ctx context.Context, kind models.EntityKind) ([]*models.OfflineRecord, error) {
	return e.store.List(ctx, kind)
}

// Delete tombstones a record and enqueues the delete; the local copy is
// purged once the server acknowledges. Kinds without a delete endpoint
// (files) are rejected.
func (e *Engine) Delete(ctx context.Context, kind models.EntityKind, id models.UUID) error {
	if !models.SupportsAction(kind, models.ActionDelete) {
		return apperrors.New(apperrors.ErrQueueUnsupported,
			fmt.Sprintf("remote API has no delete endpoint for %s", kind))
	}

	rec, err := e.store.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.WithTx(tx).MarkDeleted(ctx, kind, id); err != nil {
			return err
		}
		_, err := e.queue.WithTx(tx).Enqueue(ctx, models.ActionDelete, kind, rec.Payload, e.cfg.MaxAttempts)
		return err
	})
	if err != nil {
		return err
	}

	e.dispatchIfOnline()
	return nil
}

// Pending returns every record not yet acknowledged by the server,
// which backs the caller's "pending / failed to sync" indicator.
func (e *Engine) Pending(ctx context.Context) ([]*models.OfflineRecord, error) {
	return e.store.ListUnsynced(ctx)
}

// Conflicts returns all unresolved conflicts.
func (e *Engine) Conflicts(ctx context.Context) ([]*models.ConflictRecord, error) {
	return e.ledger.List(ctx)
}

// Resolve applies an explicit resolution strategy to a conflict.
func (e *Engine) Resolve(ctx context.Context, conflictID models.UUID, strategy conflict.Strategy) error {
	if err := e.resolver.Resolve(ctx, conflictID, strategy); err != nil {
		return err
	}
	e.dispatchIfOnline()
	return nil
}

// SyncNow runs one drain pass. A concurrent trigger while a pass is in
// flight returns (nil, nil).
func (e *Engine) SyncNow(ctx context.Context) (*processor.PassResult, error) {
	return e.processor.Run(ctx)
}

// QueueSize returns the number of queued mutations.
func (e *Engine) QueueSize(ctx context.Context) (int, error) {
	return e.queue.Size(ctx)
}

// Reconcile re-derives queue state from unsynced records. If a save
// committed but the matching enqueue was lost (or the schema predates
// the shared transaction), the record would otherwise stay unsynced
// forever. Entities with an unresolved conflict wait for resolution
// instead.
func (e *Engine) Reconcile(ctx context.Context) error {
	records, err := e.store.ListUnsynced(ctx)
	if err != nil {
		return err
	}

	conflicts, err := e.ledger.List(ctx)
	if err != nil {
		return err
	}
	conflicted := make(map[models.UUID]bool, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.EntityID] = true
	}

	requeued := 0
	for _, rec := range records {
		if conflicted[rec.ID] {
			continue
		}
		pending, err := e.queue.HasPendingFor(ctx, rec.Kind, rec.ID)
		if err != nil {
			return err
		}
		if pending {
			continue
		}

		action := models.FallbackAction(rec.Kind, rec.Deleted)
		if !models.SupportsAction(rec.Kind, action) {
			continue
		}
		if _, err := e.queue.Enqueue(ctx, action, rec.Kind, rec.Payload, e.cfg.MaxAttempts); err != nil {
			return err
		}
		requeued++
	}

	if requeued > 0 {
		logging.Info("reconciled queue from unsynced records", map[string]interface{}{
			"requeued": requeued,
		})
	}
	return nil
}

// dispatchIfOnline triggers a drain pass when the device is reachable.
func (e *Engine) dispatchIfOnline() {
	if !e.monitor.IsOnline() {
		return
	}
	go func() {
		if _, err := e.processor.Run(context.Background()); err != nil {
			logging.Error("drain pass failed", err)
		}
	}()
}

func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.database.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit transaction", err)
	}
	return nil
}

// chooseAction maps a save to the remote operation: updates when the
// record already exists and the API supports them, creates otherwise.
func chooseAction(kind models.EntityKind, existed bool) models.SyncAction {
	if existed && models.SupportsAction(kind, models.ActionUpdate) {
		return models.ActionUpdate
	}
	return models.FallbackAction(kind, false)
}

// normalizePayload fills in the engine-required header fields: a
// client-generated id for new records and a modification timestamp.
func normalizePayload(payload json.RawMessage) (json.RawMessage, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "payload must be a JSON object", err)
	}

	if v, ok := obj["id"].(string); !ok || v == "" {
		obj["id"] = uuid.New().String()
	}
	if v, ok := obj["modified_at"].(float64); !ok || v == 0 {
		obj["modified_at"] = time.Now().Unix()
	}

	normalized, err := json.Marshal(obj)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode payload", err)
	}
	return json.RawMessage(normalized), nil
}
