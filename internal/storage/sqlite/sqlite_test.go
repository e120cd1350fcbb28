package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/internal/database"
	"github.com/OCAP2/bouncelog/internal/logging"
	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/internal/storage/storagetest"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestBackendConformance_InMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b, err := New(Config{Path: database.MemoryDSN("sqlite_" + uuid.NewString())}, logging.NewSlogManager())
		require.NoError(t, err)
		require.NoError(t, b.Init())
		return b
	})
}

func TestBackendConformance_File(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b, err := New(Config{Path: filepath.Join(t.TempDir(), "positions.db")}, nil)
		require.NoError(t, err)
		require.NoError(t, b.Init())
		return b
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	ctx := context.Background()

	b, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	_, err = b.InsertOne(ctx, core.Position3D{X: 7, Y: 8, Z: 9})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	got, err := b.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Position3D{X: 7, Y: 8, Z: 9}, got[0].Position())
}

func TestDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "dump.db")
	b, err := New(Config{
		Path:         database.MemoryDSN("dump_" + uuid.NewString()),
		DumpPath:     dumpPath,
		DumpInterval: 20 * time.Millisecond,
	}, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	_, err = b.InsertOne(context.Background(), core.Position3D{X: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(dumpPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Twice(t *testing.T) {
	b, err := New(Config{Path: database.MemoryDSN("close_" + uuid.NewString())}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.NotPanics(t, func() { _ = b.Close() })
}
