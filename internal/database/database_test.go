package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/bouncelog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "bounce"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=bounce sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestMemoryDSN(t *testing.T) {
	assert.Equal(t, "file:abc?mode=memory&cache=shared", MemoryDSN("abc"))
}

func TestGetSqliteDB_InMemoryAndSetup(t *testing.T) {
	db, err := GetSqliteDB(MemoryDSN("database_setup"))
	require.NoError(t, err)

	require.NoError(t, Setup(db))
	assert.True(t, db.Migrator().HasTable(&model.Position{}))
}

func TestGetSqliteDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	db, err := GetSqliteDB(path)
	require.NoError(t, err)
	require.NoError(t, Setup(db))

	require.NoError(t, db.Create(&model.Position{X: 1}).Error)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB(MemoryDSN("database_dump"))
	require.NoError(t, err)
	require.NoError(t, Setup(db))
	require.NoError(t, db.Create(&model.Position{X: 1, Y: 2, Z: 3}).Error)

	out := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, out))

	restored, err := GetSqliteDB(out)
	require.NoError(t, err)
	var count int64
	require.NoError(t, restored.Model(&model.Position{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	err := DumpMemoryDBToDisk(nil, "")
	assert.Error(t, err)
}
