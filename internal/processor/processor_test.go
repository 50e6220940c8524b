package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamgrid/workspace-client/internal/api"
	"github.com/teamgrid/workspace-client/internal/conflict"
	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
	"github.com/teamgrid/workspace-client/internal/queue"
	"github.com/teamgrid/workspace-client/internal/store"
)

type fakeRemote struct {
	pushFn func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error)
	pushed []*models.SyncQueueItem
}

func (f *fakeRemote) Push(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
	f.pushed = append(f.pushed, item)
	if f.pushFn != nil {
		return f.pushFn(ctx, item)
	}
	return &api.PushResult{}, nil
}

type fixture struct {
	store     *store.Store
	queue     *queue.Queue
	ledger    *conflict.Ledger
	remote    *fakeRemote
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := db.NewMigrator(database.DB)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	f := &fixture{
		store:  store.New(database),
		queue:  queue.New(database),
		ledger: conflict.NewLedger(database),
		remote: &fakeRemote{},
	}
	f.processor = New(f.store, f.queue, f.ledger, f.remote)
	return f
}

func eventPayload(id string, modifiedAt int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"title":"standup","starts_at":900,"modified_at":%d}`, id, modifiedAt))
}

// saveAndEnqueue mirrors the engine's save path: record written as
// unsynced, mutation queued with the payload snapshot.
func (f *fixture) saveAndEnqueue(t *testing.T, kind models.EntityKind, action models.SyncAction, payload json.RawMessage) *models.SyncQueueItem {
	t.Helper()
	ctx := context.Background()

	_, err := f.store.Save(ctx, kind, payload)
	require.NoError(t, err)
	item, err := f.queue.Enqueue(ctx, action, kind, payload, 3)
	require.NoError(t, err)
	return item
}

func TestRunDeliversInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))
	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e2", 100))

	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Delivered)
	assert.False(t, result.Aborted)

	require.Len(t, f.remote.pushed, 2)
	assert.Equal(t, models.UUID("e1"), f.remote.pushed[0].EntityID)
	assert.Equal(t, models.UUID("e2"), f.remote.pushed[1].EntityID)

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	for _, id := range []models.UUID{"e1", "e2"} {
		rec, err := f.store.Get(ctx, models.KindEvent, id)
		require.NoError(t, err)
		assert.True(t, rec.Synced)
	}
}

func TestRunPurgesDeliveredDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload := eventPayload("e1", 100)
	_, err := f.store.Save(ctx, models.KindEvent, payload)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkDeleted(ctx, models.KindEvent, "e1"))
	_, err = f.queue.Enqueue(ctx, models.ActionDelete, models.KindEvent, payload, 3)
	require.NoError(t, err)

	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	_, err = f.store.Get(ctx, models.KindEvent, "e1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRetryBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		return nil, apperrors.New(apperrors.ErrTransport, "request failed")
	}

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))

	for pass := 1; pass <= 2; pass++ {
		result, err := f.processor.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retried, "pass %d", pass)
		assert.Equal(t, 0, result.Dropped, "pass %d", pass)

		size, err := f.queue.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, size, "item stays queued after pass %d", pass)
	}

	// third failure exhausts the budget
	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	assert.Len(t, f.remote.pushed, 3, "exactly maxAttempts deliveries were attempted")

	// the record is still local and visibly unsynced
	rec, err := f.store.Get(ctx, models.KindEvent, "e1")
	require.NoError(t, err)
	assert.False(t, rec.Synced)

	unsynced, err := f.store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, models.UUID("e1"), unsynced[0].ID)
}

func TestExhaustedItemDroppedWithoutPush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		return nil, apperrors.New(apperrors.ErrTransport, "request failed")
	}

	// an item can survive a crash with its attempt counter already at
	// the budget: the increment committed but the removal did not
	item := f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))
	for i := 0; i < item.MaxAttempts; i++ {
		_, err := f.queue.IncrementAttempts(ctx, item.ID)
		require.NoError(t, err)
	}
	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e2", 100))

	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, result.Retried)

	// e1 must not be delivered a fourth time; e2 still gets its turn
	require.Len(t, f.remote.pushed, 1)
	assert.Equal(t, models.UUID("e2"), f.remote.pushed[0].EntityID)

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "only e2 remains queued")

	items, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.UUID("e2"), items[0].EntityID)
}

func TestNonRetryableFailureAbortsPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		return nil, apperrors.New(apperrors.ErrCredentialExpired, "bearer credential has expired")
	}

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))
	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e2", 100))

	result, err := f.processor.Run(ctx)
	require.Error(t, err)
	assert.True(t, result.Aborted)
	assert.Len(t, f.remote.pushed, 1, "remaining items wait for the next trigger")

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size, "no retry budget burned on credential trouble")
}

func TestConflictRecordedOnDivergence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		return &api.PushResult{ServerPayload: eventPayload("e1", 300)}, nil
	}

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))
	// a second local edit lands while the item is still queued
	_, err := f.store.Save(ctx, models.KindEvent, eventPayload("e1", 200))
	require.NoError(t, err)

	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, result.Delivered)

	conflicts, err := f.ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.UUID("e1"), conflicts[0].EntityID)

	localMarker, err := models.ModificationMarker(conflicts[0].LocalVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(200), localMarker)
	serverMarker, err := models.ModificationMarker(conflicts[0].ServerVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(300), serverMarker)

	// local copy is preserved, not overwritten by the server version
	rec, err := f.store.Get(ctx, models.KindEvent, "e1")
	require.NoError(t, err)
	marker, err := rec.ModificationMarker()
	require.NoError(t, err)
	assert.Equal(t, int64(200), marker)
	assert.False(t, rec.Synced)

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestRemodifiedRecordStaysUnsynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))
	_, err := f.store.Save(ctx, models.KindEvent, eventPayload("e1", 200))
	require.NoError(t, err)

	// no server payload in the response, so no conflict to detect
	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	rec, err := f.store.Get(ctx, models.KindEvent, "e1")
	require.NoError(t, err)
	assert.False(t, rec.Synced, "the newer edit still awaits delivery")
}

func TestServerEchoWithoutRemodificationIsNotAConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		return &api.PushResult{ServerPayload: eventPayload("e1", 300)}, nil
	}

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))

	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Conflicts)

	rec, err := f.store.Get(ctx, models.KindEvent, "e1")
	require.NoError(t, err)
	assert.True(t, rec.Synced)
}

func TestSingleFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	f.remote.pushFn = func(ctx context.Context, item *models.SyncQueueItem) (*api.PushResult, error) {
		close(entered)
		<-release
		return &api.PushResult{}, nil
	}

	f.saveAndEnqueue(t, models.KindEvent, models.ActionCreate, eventPayload("e1", 100))

	done := make(chan *PassResult, 1)
	go func() {
		result, _ := f.processor.Run(ctx)
		done <- result
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never started")
	}
	assert.True(t, f.processor.Running())

	// second trigger while in flight is a no-op
	result, err := f.processor.Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, result)

	close(release)
	select {
	case first := <-done:
		assert.Equal(t, 1, first.Delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}
	assert.False(t, f.processor.Running())
}
