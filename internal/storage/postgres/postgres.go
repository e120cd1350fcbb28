// Package postgres implements the storage.Backend interface on PostgreSQL.
// The connection is opened lazily in Init so a missing server surfaces as an
// Init error instead of a construction failure.
package postgres

import (
	"fmt"

	"github.com/OCAP2/bouncelog/internal/database"
	"github.com/OCAP2/bouncelog/internal/logging"
	gormstorage "github.com/OCAP2/bouncelog/internal/storage/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	Config     database.PostgresConfig
	LogManager *logging.SlogManager
}

// Backend wraps the GORM backend for Postgres.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a Postgres backend. No connection is attempted until Init.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{LogManager: deps.LogManager}),
		deps:    deps,
	}
}

// Init connects to the server and migrates the schema.
func (b *Backend) Init() error {
	if b.DB() == nil {
		db, err := database.GetPostgresDB(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres at %s:%s: %w",
				b.deps.Config.Host, b.deps.Config.Port, err)
		}
		b.SetDB(db)
	}
	return b.Backend.Init()
}
