// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, b *Backend) {
	t.Helper()
	b.now = func() time.Time { return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC) }
	_, err := b.InsertMany(context.Background(), []core.Position3D{
		{X: 1, Y: 2, Z: 3},
		{X: -4, Y: 5.5, Z: 0},
	})
	require.NoError(t, err)
}

func TestBuildExport(t *testing.T) {
	b := New(Config{})
	seed(t, b)

	export := b.buildExport()
	assert.Equal(t, 2, export.Count)
	require.Len(t, export.Positions, 2)
	assert.Equal(t, uint(2), export.Positions[0].ID)
	assert.Equal(t, -4.0, export.Positions[0].X)
	assert.Equal(t, "2024-01-15T10:30:00Z", export.ExportedAt.Format(time.RFC3339))
}

func TestExportJSON_Uncompressed(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: dir})
	seed(t, b)

	require.NoError(t, b.Close())

	path := b.LastExportPath()
	assert.Equal(t, filepath.Join(dir, "positions_20240115_103000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got PositionExport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 5.5, got.Positions[0].Y)
}

func TestExportJSON_Compressed(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: filepath.Join(dir, "nested"), CompressOutput: true})
	seed(t, b)

	require.NoError(t, b.Close())

	path := b.LastExportPath()
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var got PositionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&got))
	assert.Len(t, got.Positions, 2)
}

func TestExportJSON_Empty(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: dir})

	require.NoError(t, b.Close())

	data, err := os.ReadFile(b.LastExportPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"positions":[]`)
}
