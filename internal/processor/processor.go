// Package processor drains the sync queue against the remote API,
// exactly one pass at a time.
package processor

import (
	"context"
	"sync/atomic"

	"github.com/teamgrid/workspace-client/internal/api"
	"github.com/teamgrid/workspace-client/internal/conflict"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/logging"
	"github.com/teamgrid/workspace-client/internal/models"
	"github.com/teamgrid/workspace-client/internal/queue"
	"github.com/teamgrid/workspace-client/internal/store"
)

// Remote delivers one queued mutation to the server.
type Remote interface {
	Push(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error)
}

// PassResult summarizes one completed drain pass.
type PassResult struct {
	Delivered int
	Retried   int
	Dropped   int
	Conflicts int
	Aborted   bool
}

// Processor walks the queue's current contents in enqueue order. Items
// are processed strictly sequentially, which bounds outbound request
// concurrency to one and preserves per-entity ordering.
type Processor struct {
	store  *store.Store
	queue  *queue.Queue
	ledger *conflict.Ledger
	remote Remote

	// inFlight guarantees at most one active drain pass. A second
	// trigger while running is a no-op, not queued; the next pass
	// naturally picks up anything added meanwhile.
	inFlight atomic.Bool
}

// New creates a Processor over the given collections and remote.
func New(st *store.Store, q *queue.Queue, ledger *conflict.Ledger, remote Remote) *Processor {
	return &Processor{
		store:  st,
		queue:  q,
		ledger: ledger,
		remote: remote,
	}
}

// Running reports whether a pass is currently in flight.
func (p *Processor) Running() bool {
	return p.inFlight.Load()
}

// Run executes one drain pass. If a pass is already in flight it
// returns (nil, nil) without doing anything. Transport failures are
// absorbed per item; a storage or credential failure aborts the rest of
// the pass, leaving unprocessed items queued for the next trigger.
func (p *Processor) Run(ctx context.Context) (*PassResult, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		logging.Debug("drain pass already in flight, skipping trigger")
		return nil, nil
	}
	defer p.inFlight.Store(false)

	items, err := p.queue.Drain(ctx)
	if err != nil {
		return &PassResult{Aborted: true}, err
	}

	result := &PassResult{}
	for _, item := range items {
		if err := p.processItem(ctx, item, result); err != nil {
			result.Aborted = true
			logging.ErrorWithCode("drain pass aborted", string(apperrors.ErrStorage), err, map[string]interface{}{
				"delivered": result.Delivered,
				"remaining": len(items) - result.Delivered - result.Retried - result.Dropped - result.Conflicts,
			})
			return result, err
		}
	}

	logging.Info("drain pass completed", map[string]interface{}{
		"delivered": result.Delivered,
		"retried":   result.Retried,
		"dropped":   result.Dropped,
		"conflicts": result.Conflicts,
	})
	return result, nil
}

// processItem handles one queue item. A returned error aborts the pass;
// transport-level failures are handled inside and return nil.
func (p *Processor) processItem(ctx context.Context, item *models.SyncQueueItem, result *PassResult) error {
	// An item can be left at its full attempt count if the process died
	// between the increment and the removal. Pushing it again would
	// exceed the retry budget, so finish the drop instead.
	if item.Exhausted() {
		if err := p.queue.Remove(ctx, item.ID); err != nil {
			return err
		}
		result.Dropped++
		logging.Warn("dropping item with exhausted retry budget", map[string]interface{}{
			"item_id":     item.ID,
			"entity_kind": item.Kind,
			"entity_id":   item.EntityID,
			"attempts":    item.Attempts,
		})
		return nil
	}

	res, err := p.remote.Push(ctx, item)
	if err != nil {
		if apperrors.IsRetryable(err) {
			return p.recordFailure(ctx, item, err, result)
		}
		// credential or storage trouble fails every item; stop here
		return err
	}

	remodified, err := p.remodifiedSinceSnapshot(ctx, item)
	if err != nil {
		return err
	}

	if res.ServerPayload != nil && remodified {
		current, err := p.store.Get(ctx, item.Kind, item.EntityID)
		if err == nil && conflict.Detect(current.Payload, res.ServerPayload) {
			if _, err := p.ledger.Record(ctx, item.Kind, item.EntityID, current.Payload, res.ServerPayload); err != nil {
				return err
			}
			if err := p.queue.Remove(ctx, item.ID); err != nil {
				return err
			}
			result.Conflicts++
			logging.Warn("divergence detected, conflict recorded", map[string]interface{}{
				"entity_kind": item.Kind,
				"entity_id":   item.EntityID,
			})
			return nil
		}
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}

	if err := p.queue.Remove(ctx, item.ID); err != nil {
		return err
	}

	switch {
	case item.Action == models.ActionDelete:
		if err := p.store.Purge(ctx, item.Kind, item.EntityID); err != nil {
			return err
		}
	case remodified:
		// a newer local write superseded this snapshot; its own queue
		// item will mark the record synced when it lands
	default:
		if err := p.store.MarkSynced(ctx, item.Kind, item.EntityID); err != nil {
			return err
		}
	}

	result.Delivered++
	return nil
}

// recordFailure counts a transport failure against the item's retry
// budget and drops the item once the budget is exhausted. The record
// stays unsynced either way.
func (p *Processor) recordFailure(ctx context.Context, item *models.SyncQueueItem, cause error, result *PassResult) error {
	attempts, err := p.queue.IncrementAttempts(ctx, item.ID)
	if err != nil {
		return err
	}

	if attempts >= item.MaxAttempts {
		if err := p.queue.Remove(ctx, item.ID); err != nil {
			return err
		}
		result.Dropped++
		logging.ErrorWithCode("retry budget exhausted, dropping item", string(apperrors.ErrTransport), cause,
			map[string]interface{}{
				"item_id":     item.ID,
				"entity_kind": item.Kind,
				"entity_id":   item.EntityID,
				"attempts":    attempts,
			})
		return nil
	}

	result.Retried++
	logging.Warn("delivery failed, will retry on next pass", map[string]interface{}{
		"item_id":  item.ID,
		"attempts": attempts,
		"error":    cause.Error(),
	})
	return nil
}

// remodifiedSinceSnapshot reports whether the record was written again
// locally after this queue item's snapshot was taken.
func (p *Processor) remodifiedSinceSnapshot(ctx context.Context, item *models.SyncQueueItem) (bool, error) {
	current, err := p.store.Get(ctx, item.Kind, item.EntityID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	snapshotMarker, err := models.ModificationMarker(item.Payload)
	if err != nil {
		return false, nil
	}
	currentMarker, err := current.ModificationMarker()
	if err != nil {
		return false, nil
	}
	return currentMarker != snapshotMarker, nil
}
