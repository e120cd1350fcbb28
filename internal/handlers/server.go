// Package handlers exposes the position log over HTTP and mounts the
// broadcast WebSocket endpoint.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// LogService is the set of log operations the routes call.
type LogService interface {
	Save(ctx context.Context, p core.Position3D) (core.Snapshot, error)
	SaveAll(ctx context.Context, ps []core.Position3D) (int, error)
	List(ctx context.Context) ([]core.Snapshot, error)
	Delete(ctx context.Context, id uint) error
	ClearDashboard(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Bind      string
	Port      int
	StaticDir string
}

// Dependencies holds everything the routes need. Hub and Status may be nil.
type Dependencies struct {
	Service LogService
	Hub     http.Handler
	Status  http.Handler
	Logger  *slog.Logger
}

// Server wraps the HTTP server and router.
type Server struct {
	cfg    Config
	router *chi.Mux
	logger *slog.Logger
}

// New returns an initialized server.
func New(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	return &Server{
		cfg:    cfg,
		router: routes(cfg, deps, logger),
		logger: logger,
	}
}

// Router returns the underlying router, useful for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
}

// Start begins serving until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctxTo, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxTo); err != nil {
			s.logger.Warn("Graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info("Server listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}

func routes(cfg Config, deps Dependencies, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLogger(logger))
	r.Use(recoverer(logger))
	r.Use(securityHeaders)

	h := &routeHandlers{svc: deps.Service, logger: logger}

	r.Get("/healthcheck", h.healthcheck)
	r.Post("/savePosition", h.savePosition)
	r.Post("/saveAllPositions", h.saveAllPositions)
	r.Get("/getPositions", h.getPositions)
	r.Post("/deleteEntry", h.deleteEntry)
	r.Delete("/clearDashboard", h.clearDashboard)
	r.Delete("/clearAllEntries", h.clearAllEntries)

	if deps.Status != nil {
		r.Get("/status", deps.Status.ServeHTTP)
	}

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeHTTP)
		// Older browser clients dial /location.
		r.Get("/location", deps.Hub.ServeHTTP)
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
