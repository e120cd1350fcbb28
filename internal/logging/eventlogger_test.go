package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/internal/dispatcher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatcher.Logger = (*EventLogger)(nil)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse log output")
	return entry
}

func TestEventLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *EventLogger)
	}{
		{"debug", func(l *EventLogger) { l.Debug("routed", "event", "positionUpdate") }},
		{"info", func(l *EventLogger) { l.Info("routed", "event", "positionUpdate") }},
		{"error", func(l *EventLogger) { l.Error("routed", "event", "positionUpdate") }},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewEventLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "routed", entry["message"])
			assert.Equal(t, "events", entry["component"])
			assert.Equal(t, "positionUpdate", entry["event"])
		})
	}
}

func TestEventLogger_TypedValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLogger(zerolog.New(&buf))

	l.Error("handler failed", "error", errors.New("refresh: get failed"), "took", 1500*time.Millisecond, "queued", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "refresh: get failed", entry["error"])
	assert.Equal(t, float64(1500), entry["took"])
	assert.Equal(t, float64(3), entry["queued"])
}

func TestEventLogger_MalformedPairs(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLogger(zerolog.New(&buf))

	l.Info("odd", 42, "answer", "dangling")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "answer", entry["42"])
	assert.Equal(t, "dangling", entry[badKey])
}

func TestEventLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden", "event", "hello")

	assert.Empty(t, buf.String())
}
