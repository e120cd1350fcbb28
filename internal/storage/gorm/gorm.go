// Package gormstorage implements the storage.Backend interface on top of a
// *gorm.DB. The SQLite and Postgres backends embed it and only differ in how
// the connection is opened.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OCAP2/bouncelog/internal/database"
	"github.com/OCAP2/bouncelog/internal/logging"
	"github.com/OCAP2/bouncelog/internal/model"
	"github.com/OCAP2/bouncelog/internal/model/convert"
	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/pkg/core"

	"gorm.io/gorm"
)

// ErrNoDB is returned by Init when no connection was injected.
var ErrNoDB = errors.New("no database connection")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies

	// mu serializes mutations; reads take the read lock so they never see
	// a half-applied batch.
	mu sync.RWMutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after construction.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	b.logf("Init", "INFO", "Migrating schema on %s", b.deps.DB.Dialector.Name())
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.logf("Init", "INFO", "Database setup complete")
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// InsertOne inserts a single position row.
func (b *Backend) InsertOne(ctx context.Context, p core.Position3D) (core.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row := convert.CoreToPosition(p)
	if err := b.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
		b.logf("InsertOne", "ERROR", "Failed to insert position: %v", err)
		return core.Snapshot{}, storage.Wrap("insert", err)
	}
	return convert.PositionToCore(row), nil
}

// InsertMany inserts every position in a single transaction.
func (b *Backend) InsertMany(ctx context.Context, ps []core.Position3D) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rows := make([]model.Position, len(ps))
	for i, p := range ps {
		rows[i] = convert.CoreToPosition(p)
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		b.logf("InsertMany", "ERROR", "Failed to insert %d positions: %v", len(rows), err)
		return 0, storage.Wrap("insert many", err)
	}
	return len(rows), nil
}

// DeleteOne deletes the row with the given primary key, if present.
func (b *Backend) DeleteOne(ctx context.Context, id uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := b.deps.DB.WithContext(ctx).Delete(&model.Position{}, id)
	if result.Error != nil {
		b.logf("DeleteOne", "ERROR", "Failed to delete position %d: %v", id, result.Error)
		return storage.Wrap("delete", result.Error)
	}
	if result.RowsAffected == 0 {
		b.logf("DeleteOne", "DEBUG", "Position %d not found", id)
	}
	return nil
}

// DeleteAll deletes every row. It uses DELETE rather than TRUNCATE so the
// ID sequence keeps counting.
func (b *Backend) DeleteAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.deps.DB.WithContext(ctx).Where("1 = 1").Delete(&model.Position{}).Error; err != nil {
		b.logf("DeleteAll", "ERROR", "Failed to delete positions: %v", err)
		return storage.Wrap("delete all", err)
	}
	return nil
}

// ListAll selects every row ordered by timestamp, newest first.
func (b *Backend) ListAll(ctx context.Context) ([]core.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var rows []model.Position
	err := b.deps.DB.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		b.logf("ListAll", "ERROR", "Failed to list positions: %v", err)
		return nil, storage.Wrap("list", err)
	}
	return convert.PositionsToCore(rows), nil
}

func (b *Backend) logf(fn, level, format string, args ...any) {
	if b.deps.LogManager == nil {
		return
	}
	b.deps.LogManager.WriteLog("gorm:"+fn, fmt.Sprintf(format, args...), level)
}
