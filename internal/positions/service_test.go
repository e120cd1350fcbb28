package positions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/internal/storage/memory"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/OCAP2/bouncelog/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	event   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	// rowsAtNotify captures the store size when each event fires.
	backend      storage.Backend
	rowsAtNotify []int
}

func (n *recordingNotifier) NotifyAll(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{event, payload})
	if n.backend != nil {
		rows, _ := n.backend.ListAll(context.Background())
		n.rowsAtNotify = append(n.rowsAtNotify, len(rows))
	}
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.event
	}
	return out
}

type fakeRecorder struct {
	mutations []string
	snapshots []core.Snapshot
}

func (r *fakeRecorder) RecordMutation(kind string, count int) {
	r.mutations = append(r.mutations, kind)
}

func (r *fakeRecorder) RecordSnapshot(s core.Snapshot) {
	r.snapshots = append(r.snapshots, s)
}

// failingBackend fails every call with a StorageError.
type failingBackend struct{}

var errDown = errors.New("database is down")

func (failingBackend) Init() error  { return nil }
func (failingBackend) Close() error { return nil }
func (failingBackend) InsertOne(context.Context, core.Position3D) (core.Snapshot, error) {
	return core.Snapshot{}, storage.Wrap("insert", errDown)
}
func (failingBackend) InsertMany(context.Context, []core.Position3D) (int, error) {
	return 0, storage.Wrap("insert many", errDown)
}
func (failingBackend) DeleteOne(context.Context, uint) error { return storage.Wrap("delete", errDown) }
func (failingBackend) DeleteAll(context.Context) error      { return storage.Wrap("delete all", errDown) }
func (failingBackend) ListAll(context.Context) ([]core.Snapshot, error) {
	return nil, storage.Wrap("list", errDown)
}

func newService(t *testing.T) (*Service, *recordingNotifier, *fakeRecorder) {
	t.Helper()
	backend := memory.New(memory.Config{})
	n := &recordingNotifier{backend: backend}
	r := &fakeRecorder{}
	return New(Dependencies{Backend: backend, Notifier: n, Recorder: r}), n, r
}

func TestService_Save(t *testing.T) {
	svc, n, r := newService(t)
	ctx := context.Background()

	snap, err := svc.Save(ctx, core.Position3D{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.Equal(t, uint(1), snap.ID)

	assert.Equal(t, []string{streaming.TypePositionUpdate}, n.types())
	assert.Equal(t, core.Position3D{X: 1, Y: 2, Z: 3}, n.events[0].payload)
	assert.Equal(t, []int{1}, n.rowsAtNotify, "notification must follow the commit")
	assert.Equal(t, []string{KindInsert}, r.mutations)
	require.Len(t, r.snapshots, 1)
	assert.Equal(t, snap, r.snapshots[0])
}

func TestService_SaveAll(t *testing.T) {
	svc, n, r := newService(t)
	ctx := context.Background()

	count, err := svc.SaveAll(ctx, []core.Position3D{{X: 1}, {X: 2}, {X: 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, []string{streaming.TypePositionsSaved}, n.types())
	assert.Equal(t, streaming.PositionsSavedPayload{Count: 3}, n.events[0].payload)
	assert.Equal(t, []int{3}, n.rowsAtNotify)
	assert.Equal(t, []string{KindInsertMany}, r.mutations)
}

func TestService_Scenario(t *testing.T) {
	svc, n, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, core.Position3D{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	_, err = svc.Save(ctx, core.Position3D{X: 4, Y: 5, Z: 6})
	require.NoError(t, err)

	rows, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint(2), rows[0].ID)

	require.NoError(t, svc.Delete(ctx, 1))
	rows, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].ID)

	require.NoError(t, svc.ClearAll(ctx))
	rows, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Equal(t, []string{
		streaming.TypePositionUpdate,
		streaming.TypePositionUpdate,
		streaming.TypeEntryDeleted,
		streaming.TypeAllEntriesCleared,
	}, n.types())
	assert.Equal(t, []int{1, 2, 1, 0}, n.rowsAtNotify)
}

func TestService_DeleteMissingStillNotifies(t *testing.T) {
	svc, n, _ := newService(t)

	require.NoError(t, svc.Delete(context.Background(), 42))

	assert.Equal(t, []string{streaming.TypeEntryDeleted}, n.types())
	assert.Equal(t, streaming.EntryDeletedPayload{ID: 42}, n.events[0].payload)
}

func TestService_ClearDashboard(t *testing.T) {
	svc, n, r := newService(t)
	ctx := context.Background()
	_, err := svc.Save(ctx, core.Position3D{})
	require.NoError(t, err)

	require.NoError(t, svc.ClearDashboard(ctx))

	rows, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, streaming.TypeDashboardCleared, n.types()[1])
	assert.Nil(t, n.events[1].payload)
	assert.Equal(t, KindClearDashboard, r.mutations[1])
}

func TestService_FailuresDoNotNotify(t *testing.T) {
	n := &recordingNotifier{}
	r := &fakeRecorder{}
	svc := New(Dependencies{Backend: failingBackend{}, Notifier: n, Recorder: r})
	ctx := context.Background()

	_, err := svc.Save(ctx, core.Position3D{})
	assert.True(t, storage.IsStorageError(err))
	assert.ErrorIs(t, err, errDown)

	_, err = svc.SaveAll(ctx, []core.Position3D{{}})
	assert.True(t, storage.IsStorageError(err))

	_, err = svc.List(ctx)
	assert.True(t, storage.IsStorageError(err))

	assert.True(t, storage.IsStorageError(svc.Delete(ctx, 1)))
	assert.True(t, storage.IsStorageError(svc.ClearDashboard(ctx)))
	assert.True(t, storage.IsStorageError(svc.ClearAll(ctx)))

	assert.Empty(t, n.types())
	assert.Empty(t, r.mutations)
}

func TestService_OptionalDependencies(t *testing.T) {
	svc := New(Dependencies{Backend: memory.New(memory.Config{})})

	_, err := svc.Save(context.Background(), core.Position3D{X: 1})
	require.NoError(t, err)
	require.NoError(t, svc.ClearAll(context.Background()))
}
