// Package storagetest holds the behavioral checks every storage.Backend must
// pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialized, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run executes the full suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"EmptyList", testEmptyList},
		{"InsertOneAssignsID", testInsertOneAssignsID},
		{"Scenario", testScenario},
		{"DeleteMissingIsNoop", testDeleteMissingIsNoop},
		{"DeleteAll", testDeleteAll},
		{"IDsNotReusedAfterDeleteAll", testIDsNotReusedAfterDeleteAll},
		{"InsertMany", testInsertMany},
		{"InsertManyEmpty", testInsertManyEmpty},
		{"ConcurrentInserts", testConcurrentInserts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

func ids(snaps []core.Snapshot) []uint {
	out := make([]uint, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func testEmptyList(t *testing.T, b storage.Backend) {
	got, err := b.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testInsertOneAssignsID(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	before, err := b.ListAll(ctx)
	require.NoError(t, err)

	snap, err := b.InsertOne(ctx, core.Position3D{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.NotZero(t, snap.ID)
	assert.False(t, snap.Timestamp.IsZero())
	assert.Equal(t, core.Position3D{X: 1, Y: 2, Z: 3}, snap.Position())

	after, err := b.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)
	assert.NotContains(t, ids(before), snap.ID)
	assert.Equal(t, snap.ID, after[0].ID)
	assert.Equal(t, snap.Position(), after[0].Position())
}

func testScenario(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	first, err := b.InsertOne(ctx, core.Position3D{})
	require.NoError(t, err)
	got, err := b.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(1), got[0].ID)
	assert.Equal(t, core.Position3D{}, got[0].Position())

	second, err := b.InsertOne(ctx, core.Position3D{X: 5, Y: 5, Z: 5})
	require.NoError(t, err)
	got, err = b.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 1}, ids(got))
	assert.Equal(t, core.Position3D{X: 5, Y: 5, Z: 5}, got[0].Position())
	assert.Equal(t, second.ID, got[0].ID)

	require.NoError(t, b.DeleteOne(ctx, first.ID))
	got, err = b.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids(got))
}

func testDeleteMissingIsNoop(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertOne(ctx, core.Position3D{X: 1})
	require.NoError(t, err)
	before, err := b.ListAll(ctx)
	require.NoError(t, err)

	require.NoError(t, b.DeleteOne(ctx, 9999))

	after, err := b.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(after))
}

func testDeleteAll(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := b.InsertOne(ctx, core.Position3D{X: float64(i)})
		require.NoError(t, err)
	}

	require.NoError(t, b.DeleteAll(ctx))
	got, err := b.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an empty log is fine too.
	require.NoError(t, b.DeleteAll(ctx))
}

func testIDsNotReusedAfterDeleteAll(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	first, err := b.InsertOne(ctx, core.Position3D{})
	require.NoError(t, err)
	require.NoError(t, b.DeleteAll(ctx))

	next, err := b.InsertOne(ctx, core.Position3D{})
	require.NoError(t, err)
	assert.Greater(t, next.ID, first.ID)
}

func testInsertMany(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	n, err := b.InsertMany(ctx, []core.Position3D{{X: 1}, {X: 2}, {X: 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := b.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	seen := map[uint]bool{}
	for _, s := range got {
		assert.False(t, seen[s.ID], "duplicate id %d", s.ID)
		seen[s.ID] = true
	}
	// Rows share a batch, so the newest-first order falls back to ID.
	assert.Equal(t, 3.0, got[0].X)
	assert.Equal(t, 1.0, got[2].X)
}

func testInsertManyEmpty(t *testing.T, b storage.Backend) {
	n, err := b.InsertMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConcurrentInserts(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := b.InsertOne(ctx, core.Position3D{X: float64(w), Y: float64(i)}); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := b.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, workers*perWorker)
}
