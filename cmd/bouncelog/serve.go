package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/OCAP2/bouncelog/internal/broadcast"
	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/internal/handlers"
	"github.com/OCAP2/bouncelog/internal/influx"
	"github.com/OCAP2/bouncelog/internal/monitor"
	"github.com/OCAP2/bouncelog/internal/positions"
	"github.com/rs/zerolog"
)

// logContext supplies the attributes added to every server log record. The
// hub is published once created; storage goroutines may log before that.
type logContext struct {
	storageType string
	hub         atomic.Pointer[broadcast.Hub]
}

func (c *logContext) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("storage", c.storageType)}
	if hub := c.hub.Load(); hub != nil {
		attrs = append(attrs, slog.Int("clients", hub.Clients()))
	}
	return attrs
}

// runServe wires storage, the broadcast hub and the HTTP routes and serves
// until ctx is cancelled.
func runServe(ctx context.Context) error {
	storageCfg := config.GetStorageConfig()

	logCtx := &logContext{storageType: storageCfg.Type}
	rt := setupRuntime(logCtx.attrs)
	defer rt.Close()

	rt.Logger.Info("Starting up...", "version", BuildVersion, "buildDate", BuildDate)

	backend, err := openStorage(storageCfg, rt.SlogManager, rt.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			rt.Logger.Error("Failed to close storage", "error", err)
		}
	}()
	rt.Logger.Info("Storage initialization complete.", "type", storageCfg.Type)

	hub, err := broadcast.NewHub(rt.Logger)
	if err != nil {
		return fmt.Errorf("create broadcast hub: %w", err)
	}
	defer hub.Close()
	logCtx.hub.Store(hub)

	var recorder positions.Recorder
	influxCfg := config.GetInfluxConfig()
	influxLog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "influx").Logger().
		Level(zerologLevel(config.GetString("logLevel")))
	mirror := influx.NewManager(influxLog, influxCfg, backupPath("influx_backup")+".gz")
	switch err := mirror.Connect(ctx); {
	case err == nil:
		recorder = mirror
		defer mirror.Close()
	case errors.Is(err, influx.ErrDisabled):
	default:
		rt.Logger.Warn("InfluxDB mirror unavailable", "error", err)
	}

	svc := positions.New(positions.Dependencies{
		Backend:  backend,
		Notifier: hub,
		Logger:   rt.Logger,
		Recorder: recorder,
	})

	status := monitor.NewService(monitor.Dependencies{
		Backend:     backend,
		StorageType: storageCfg.Type,
		Clients:     hub.Clients,
		StatusPath:  filepath.Join(config.GetString("logsDir"), "status.json"),
		Logger:      rt.Logger,
	})
	if err := status.Start(ctx); err != nil {
		rt.Logger.Warn("Failed to start status monitor", "error", err)
	}
	defer status.Stop()

	serverCfg := config.GetServerConfig()
	srv := handlers.New(handlers.Config{
		Bind:      serverCfg.Bind,
		Port:      serverCfg.Port,
		StaticDir: serverCfg.StaticDir,
	}, handlers.Dependencies{
		Service: svc,
		Hub:     hub,
		Status:  status,
		Logger:  rt.Logger,
	})

	if err := srv.Start(ctx); err != nil {
		rt.Logger.Error("Server stopped", "error", err)
		return err
	}
	rt.Logger.Info("Server stopped")
	return nil
}

func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
