// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/OCAP2/bouncelog/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
//
// Mutations are serialized by the backend and return only after the new
// state is visible to ListAll.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// InsertOne appends a capture and returns it with its assigned ID and timestamp.
	InsertOne(ctx context.Context, p core.Position3D) (core.Snapshot, error)
	// InsertMany appends all captures or none of them.
	InsertMany(ctx context.Context, ps []core.Position3D) (int, error)
	// DeleteOne removes a single snapshot. A missing ID is not an error.
	DeleteOne(ctx context.Context, id uint) error
	// DeleteAll removes every snapshot. IDs are not reused afterwards.
	DeleteAll(ctx context.Context) error

	// ListAll returns every snapshot, most recent first.
	ListAll(ctx context.Context) ([]core.Snapshot, error)
}
