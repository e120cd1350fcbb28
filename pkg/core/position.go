// pkg/core/position.go
package core

import (
	"sort"
	"time"
)

// Position3D is a captured coordinate triple.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Snapshot is one persisted capture with its store-assigned ID and timestamp.
type Snapshot struct {
	ID        uint      `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// Position returns the captured coordinates of the snapshot.
func (s Snapshot) Position() Position3D {
	return Position3D{X: s.X, Y: s.Y, Z: s.Z}
}

// SortSnapshots orders snapshots most recent first. Snapshots sharing a
// timestamp are ordered by descending ID.
func SortSnapshots(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].Timestamp.Equal(snaps[j].Timestamp) {
			return snaps[i].Timestamp.After(snaps[j].Timestamp)
		}
		return snaps[i].ID > snaps[j].ID
	})
}
