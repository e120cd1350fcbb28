// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"github.com/OCAP2/bouncelog/internal/model"
	"github.com/OCAP2/bouncelog/pkg/core"
)

// PositionToCore converts a stored GORM Position to a core.Snapshot.
func PositionToCore(p model.Position) core.Snapshot {
	return core.Snapshot{
		ID:        p.ID,
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		Timestamp: p.Timestamp,
	}
}

// PositionsToCore converts a slice of GORM Positions, preserving order.
func PositionsToCore(ps []model.Position) []core.Snapshot {
	out := make([]core.Snapshot, len(ps))
	for i, p := range ps {
		out[i] = PositionToCore(p)
	}
	return out
}

// CoreToPosition builds an unsaved GORM Position; the database fills in ID
// and Timestamp.
func CoreToPosition(p core.Position3D) model.Position {
	return model.Position{X: p.X, Y: p.Y, Z: p.Z}
}
