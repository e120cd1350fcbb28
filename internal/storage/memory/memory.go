// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/OCAP2/bouncelog/internal/storage"
	"github.com/OCAP2/bouncelog/pkg/core"
)

// Config controls the optional export written when the backend closes.
type Config struct {
	OutputDir      string
	CompressOutput bool
}

// Backend stores positions in memory and optionally exports them to JSON on close
type Backend struct {
	cfg  Config
	rows []core.Snapshot

	// nextID is never reset, so IDs survive DeleteAll without reuse.
	nextID uint
	now    func() time.Time

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg Config) *Backend {
	return &Backend{
		cfg:  cfg,
		rows: make([]core.Snapshot, 0),
		now:  time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the current rows when an output directory is configured
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// LastExportPath returns the file written by the most recent export
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// InsertOne stores a position and assigns it the next ID
func (b *Backend) InsertOne(ctx context.Context, p core.Position3D) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, storage.Wrap("insert", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.newRow(p, b.now())
	b.rows = append(b.rows, s)
	return s, nil
}

// InsertMany stores every position with a shared timestamp
func (b *Backend) InsertMany(ctx context.Context, ps []core.Position3D) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, storage.Wrap("insert many", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.now()
	for _, p := range ps {
		b.rows = append(b.rows, b.newRow(p, ts))
	}
	return len(ps), nil
}

// DeleteOne removes the row with the given ID, if present
func (b *Backend) DeleteOne(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("delete", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.rows {
		if s.ID == id {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// DeleteAll removes every row
func (b *Backend) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("delete all", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = make([]core.Snapshot, 0)
	return nil
}

// ListAll returns a copy of every row, newest first
func (b *Backend) ListAll(ctx context.Context) ([]core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("list", err)
	}

	b.mu.RLock()
	out := make([]core.Snapshot, len(b.rows))
	copy(out, b.rows)
	b.mu.RUnlock()

	core.SortSnapshots(out)
	return out, nil
}

func (b *Backend) newRow(p core.Position3D, ts time.Time) core.Snapshot {
	b.nextID++
	return core.Snapshot{
		ID:        b.nextID,
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		Timestamp: ts,
	}
}
