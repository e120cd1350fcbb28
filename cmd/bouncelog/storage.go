package main

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/internal/database"
	"github.com/OCAP2/bouncelog/internal/logging"
	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/internal/storage/memory"
	pgstorage "github.com/OCAP2/bouncelog/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/bouncelog/internal/storage/sqlite"
)

// openStorage creates the configured backend and initializes it.
func openStorage(storageCfg config.StorageConfig, lm *logging.SlogManager, logger *slog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(storageCfg, lm, logger)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		_ = backend.Close()
		return nil, fmt.Errorf("init %s storage: %w", storageCfg.Type, err)
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, lm *logging.SlogManager, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		pg := storageCfg.Postgres
		logger.Info("Postgres storage backend selected", "host", pg.Host, "port", pg.Port, "database", pg.Database)
		return pgstorage.New(pgstorage.Dependencies{
			Config: database.PostgresConfig{
				Host:     pg.Host,
				Port:     pg.Port,
				Username: pg.Username,
				Password: pg.Password,
				Database: pg.Database,
				SSLMode:  pg.SSLMode,
			},
			LogManager: lm,
		}), nil

	case "sqlite", "":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, lm)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "memory":
		logger.Info("Memory storage backend selected", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(memory.Config{
			OutputDir:      storageCfg.Memory.OutputDir,
			CompressOutput: storageCfg.Memory.CompressOutput,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
