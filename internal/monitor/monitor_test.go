package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/internal/storage/memory"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenBackend struct {
	*memory.Backend
}

func (brokenBackend) ListAll(context.Context) ([]core.Snapshot, error) {
	return nil, errors.New("db gone")
}

func seeded(t *testing.T, n int) *memory.Backend {
	t.Helper()
	b := memory.New(memory.Config{})
	for i := 0; i < n; i++ {
		_, err := b.InsertOne(context.Background(), core.Position3D{X: float64(i)})
		require.NoError(t, err)
	}
	return b
}

func TestSample(t *testing.T) {
	s := NewService(Dependencies{
		Backend:     seeded(t, 3),
		StorageType: "memory",
		Clients:     func() int { return 2 },
	})

	st := s.Sample(context.Background())

	assert.Equal(t, 3, st.Entries)
	assert.Equal(t, 2, st.Clients)
	assert.Equal(t, "memory", st.StorageType)
	assert.Empty(t, st.StorageError)
	assert.Equal(t, st, s.Last())
}

func TestSample_StorageError(t *testing.T) {
	s := NewService(Dependencies{Backend: brokenBackend{memory.New(memory.Config{})}})

	st := s.Sample(context.Background())
	assert.Equal(t, "db gone", st.StorageError)
	assert.Zero(t, st.Entries)
}

func TestServeHTTP(t *testing.T) {
	s := NewService(Dependencies{Backend: seeded(t, 1), StorageType: "sqlite"})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, "sqlite", st.StorageType)
}

func TestStartWritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Backend:    seeded(t, 2),
		StatusPath: path,
		Interval:   10 * time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			return false
		}
		var st Status
		return json.Unmarshal(data, &st) == nil && st.Entries == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStartStopsWithContext(t *testing.T) {
	s := NewService(Dependencies{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}
