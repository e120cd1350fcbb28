package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Position(t *testing.T) {
	s := Snapshot{ID: 7, X: 1, Y: 2, Z: 3}
	assert.Equal(t, Position3D{X: 1, Y: 2, Z: 3}, s.Position())
}

func TestSnapshot_JSONShape(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(Snapshot{ID: 1, X: 0.5, Y: -1, Z: 2, Timestamp: ts})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, float64(1), m["id"])
	assert.Equal(t, 0.5, m["x"])
	assert.Equal(t, float64(-1), m["y"])
	assert.Equal(t, float64(2), m["z"])
	assert.Equal(t, "2026-01-02T03:04:05Z", m["timestamp"])
}

func TestSortSnapshots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := []Snapshot{
		{ID: 1, Timestamp: base},
		{ID: 3, Timestamp: base.Add(time.Second)},
		{ID: 2, Timestamp: base.Add(time.Second)},
		{ID: 4, Timestamp: base.Add(-time.Second)},
	}

	SortSnapshots(snaps)

	ids := make([]uint, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
	}
	assert.Equal(t, []uint{3, 2, 1, 4}, ids)
}
