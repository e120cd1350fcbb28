package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/internal/broadcast"
	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/bouncelog/internal/storage/sqlite"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStorageBackend(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)
	require.NoError(t, b.Close())

	_, err = createStorageBackend(config.StorageConfig{Type: "mongo"}, nil, logger)
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestPrintSnapshots(t *testing.T) {
	rows := []core.Snapshot{{ID: 2, X: 1.5, Y: 2, Z: -3, Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}}

	var buf bytes.Buffer
	require.NoError(t, printSnapshots(&buf, rows, false))
	assert.Contains(t, buf.String(), "TIMESTAMP")
	assert.Contains(t, buf.String(), "-3.00")
	assert.Contains(t, buf.String(), "2024-01-15 10:30:00")

	buf.Reset()
	require.NoError(t, printSnapshots(&buf, nil, true))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, zerologLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, zerologLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel("nonsense"))
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--config", t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), ServiceName+" "+BuildVersion)
}

func TestListCommand_Memory(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	viper.Set("storage.type", "memory")
	viper.Set("logsDir", filepath.Join(dir, "logs"))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--json", "--config", dir})

	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `[]`, out.String())
}

func TestMigrateCommand_SQLite(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bouncelog.db")
	viper.Set("storage.type", "sqlite")
	viper.Set("storage.sqlite.path", dbPath)
	viper.Set("logsDir", filepath.Join(dir, "logs"))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--config", dir})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, dbPath)
}

func TestLogContext_PublishesHubSafely(t *testing.T) {
	c := &logContext{storageType: "sqlite"}
	assert.Equal(t, []string{"storage=sqlite"}, attrStrings(c.attrs()))

	hub, err := broadcast.NewHub(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = c.attrs()
		}
	}()
	c.hub.Store(hub)
	<-done

	assert.Equal(t, []string{"storage=sqlite", "clients=0"}, attrStrings(c.attrs()))
}

func attrStrings(attrs []slog.Attr) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a.String())
	}
	return out
}
