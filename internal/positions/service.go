// Package positions ties the persisted log to the broadcast synchronizer.
// Every mutation is committed first and only then announced.
package positions

import (
	"context"
	"log/slog"

	"github.com/OCAP2/bouncelog/internal/broadcast"
	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/OCAP2/bouncelog/pkg/streaming"
	"github.com/getsentry/sentry-go"
)

// Mutation kinds passed to the Recorder.
const (
	KindInsert         = "insert"
	KindInsertMany     = "insert_many"
	KindDelete         = "delete"
	KindClearDashboard = "clear_dashboard"
	KindClearAll       = "clear_all"
)

// Recorder mirrors committed mutations somewhere else, e.g. InfluxDB.
type Recorder interface {
	RecordMutation(kind string, count int)
	RecordSnapshot(s core.Snapshot)
}

// Dependencies holds everything the service talks to. Notifier, Logger and
// Recorder are optional.
type Dependencies struct {
	Backend  storage.Backend
	Notifier broadcast.Notifier
	Logger   *slog.Logger
	Recorder Recorder
}

// Service runs log operations and announces each successful one.
type Service struct {
	backend  storage.Backend
	notifier broadcast.Notifier
	logger   *slog.Logger
	recorder Recorder
}

// New creates a Service.
func New(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:  deps.Backend,
		notifier: deps.Notifier,
		logger:   logger.With("component", "positions"),
		recorder: deps.Recorder,
	}
}

// Save persists one capture and announces positionUpdate.
func (s *Service) Save(ctx context.Context, p core.Position3D) (core.Snapshot, error) {
	snap, err := s.backend.InsertOne(ctx, p)
	if err != nil {
		s.fail(ctx, "save", err)
		return core.Snapshot{}, err
	}

	s.logger.Debug("Position saved", "id", snap.ID, "x", snap.X, "y", snap.Y, "z", snap.Z)
	if s.recorder != nil {
		s.recorder.RecordMutation(KindInsert, 1)
		s.recorder.RecordSnapshot(snap)
	}
	s.notify(streaming.TypePositionUpdate, p)
	return snap, nil
}

// SaveAll persists a batch atomically and announces positionsSaved.
func (s *Service) SaveAll(ctx context.Context, ps []core.Position3D) (int, error) {
	n, err := s.backend.InsertMany(ctx, ps)
	if err != nil {
		s.fail(ctx, "saveAll", err)
		return 0, err
	}

	s.logger.Debug("Positions saved", "count", n)
	if s.recorder != nil {
		s.recorder.RecordMutation(KindInsertMany, n)
	}
	s.notify(streaming.TypePositionsSaved, streaming.PositionsSavedPayload{Count: n})
	return n, nil
}

// List returns the full log, newest first.
func (s *Service) List(ctx context.Context) ([]core.Snapshot, error) {
	rows, err := s.backend.ListAll(ctx)
	if err != nil {
		s.fail(ctx, "list", err)
		return nil, err
	}
	return rows, nil
}

// Delete removes one entry and announces entryDeleted. A missing id is not an error.
func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := s.backend.DeleteOne(ctx, id); err != nil {
		s.fail(ctx, "delete", err)
		return err
	}

	s.logger.Debug("Entry deleted", "id", id)
	if s.recorder != nil {
		s.recorder.RecordMutation(KindDelete, 1)
	}
	s.notify(streaming.TypeEntryDeleted, streaming.EntryDeletedPayload{ID: id})
	return nil
}

// ClearDashboard empties the log and announces dashboardCleared.
func (s *Service) ClearDashboard(ctx context.Context) error {
	return s.clear(ctx, "clearDashboard", KindClearDashboard, streaming.TypeDashboardCleared)
}

// ClearAll empties the log and announces allEntriesCleared.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.clear(ctx, "clearAll", KindClearAll, streaming.TypeAllEntriesCleared)
}

func (s *Service) clear(ctx context.Context, op, kind, event string) error {
	if err := s.backend.DeleteAll(ctx); err != nil {
		s.fail(ctx, op, err)
		return err
	}

	s.logger.Info("Log cleared", "op", op)
	if s.recorder != nil {
		s.recorder.RecordMutation(kind, 0)
	}
	s.notify(event, nil)
	return nil
}

func (s *Service) notify(event string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyAll(event, payload)
}

// fail logs the error and reports it to Sentry (a no-op unless initialized).
func (s *Service) fail(ctx context.Context, op string, err error) {
	s.logger.ErrorContext(ctx, "Log operation failed", "op", op, "error", err)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("op", op)
		scope.SetTag("storage_error", boolTag(storage.IsStorageError(err)))
	})
	hub.CaptureException(err)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
