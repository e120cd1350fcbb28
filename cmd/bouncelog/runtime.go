package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/internal/logging"
	intOtel "github.com/OCAP2/bouncelog/internal/otel"
	"github.com/getsentry/sentry-go"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const flushTimeout = 2 * time.Second

// runtime holds the ambient services every command shares.
type runtime struct {
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	OTel        *intOtel.Provider
	LogFilePath string

	logFile     *os.File
	gelf        io.Closer
	sentryReady bool
}

// setupRuntime opens the session log file and wires slog to stdout, the file,
// OTel and Graylog as configured. Failures of optional sinks are logged and
// skipped.
func setupRuntime(contextProvider logging.ContextProvider) *runtime {
	rt := &runtime{SlogManager: logging.NewSlogManager()}
	level := config.GetString("logLevel")

	rt.SlogManager.Setup(nil, level, nil)
	rt.Logger = rt.SlogManager.Logger()

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		rt.Logger.Warn("Failed to create logs directory", "path", logsDir, "error", err)
	} else {
		rt.LogFilePath = logging.LogFilePath(logsDir, ServiceName, time.Now())
		if _, err := os.Stat(rt.LogFilePath); err == nil {
			_ = os.Rename(rt.LogFilePath, rt.LogFilePath+".old")
		}
		f, err := os.OpenFile(rt.LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			rt.Logger.Error("Failed to create/open log file!", "error", err, "path", rt.LogFilePath)
		} else {
			rt.logFile = f
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var logWriter io.Writer = os.Stdout
		if rt.logFile != nil {
			logWriter = rt.logFile
		}
		p, err := intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: BuildVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			rt.Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			rt.OTel = p
			rt.Logger.Info("OTel log export enabled", "instance", p.InstanceID(), "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		w, err := logging.NewGELFWriter(graylogCfg.Address)
		if err != nil {
			rt.Logger.Error("Failed to connect to Graylog", "address", graylogCfg.Address, "error", err)
		} else {
			rt.gelf = w
			extra = append(extra, logging.NewGELFHandler(w, ServiceName, logging.ParseLevel(level)))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if rt.OTel != nil {
		otelLogProvider = rt.OTel.LoggerProvider()
	}
	if contextProvider != nil {
		rt.SlogManager.SetContextProvider(contextProvider)
	}
	var file io.Writer
	if rt.logFile != nil {
		file = io.MultiWriter(os.Stdout, rt.logFile)
	}
	rt.SlogManager.Setup(file, level, otelLogProvider, extra...)
	rt.Logger = rt.SlogManager.Logger()
	slog.SetDefault(rt.Logger)

	if rt.LogFilePath != "" && rt.logFile != nil {
		rt.Logger.Info("Logging to file", "path", rt.LogFilePath)
	}

	rt.sentryReady = initSentry(rt.Logger)
	return rt
}

// initSentry configures the global Sentry hub. Without it every capture is a
// no-op.
func initSentry(logger *slog.Logger) bool {
	cfg := config.GetSentryConfig()
	if !cfg.Enabled {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          fmt.Sprintf("%s@%s", ServiceName, BuildVersion),
		SampleRate:       cfg.SampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Error("Failed to initialize Sentry", "error", err)
		return false
	}
	logger.Info("Sentry initialized", "environment", cfg.Environment)
	return true
}

// Close flushes and releases every sink in reverse order of setup.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if rt.sentryReady {
		sentry.Flush(flushTimeout)
	}
	if err := rt.SlogManager.Flush(ctx); err != nil {
		rt.Logger.Warn("Failed to flush logs", "error", err)
	}
	if rt.OTel != nil {
		if err := rt.OTel.Shutdown(ctx); err != nil {
			rt.Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if rt.gelf != nil {
		_ = rt.gelf.Close()
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
	}
}

// backupPath places auxiliary output files next to the session log.
func backupPath(name string) string {
	return filepath.Join(config.GetString("logsDir"), fmt.Sprintf("%s.%s", name, time.Now().Format("20060102_150405")))
}
