// Package sqlitestorage implements the storage.Backend interface using SQLite.
// It wraps the GORM backend via composition; the only SQLite-specific concerns
// are opening the database file (or an in-memory database) and an optional
// periodic dump to disk via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"time"

	"github.com/OCAP2/bouncelog/internal/database"
	"github.com/OCAP2/bouncelog/internal/logging"
	gormstorage "github.com/OCAP2/bouncelog/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string // Database file or DSN; empty for in-memory
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
}

// New opens the SQLite database and creates the backend.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:         db,
			LogManager: logManager,
		}),
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine and closes the embedded GORM backend.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time copy of the database to the configured path.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.DB(), b.cfg.DumpPath)
}

// dumpLoop periodically dumps the database to disk via VACUUM INTO.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if b.log == nil {
				_ = b.Dump()
				continue
			}
			if err := b.Dump(); err != nil {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			} else {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
			}
		}
	}
}
