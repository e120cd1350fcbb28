package streaming

import (
	"encoding/json"
	"fmt"
)

// Event names sent to connected clients. Every event means "re-fetch the log";
// payloads are informational only.
const (
	TypeHello             = "hello"
	TypePositionUpdate    = "positionUpdate"
	TypePositionsSaved    = "positionsSaved"
	TypeEntryDeleted      = "entryDeleted"
	TypeDashboardCleared  = "dashboardCleared"
	TypeAllEntriesCleared = "allEntriesCleared"
)

// RefetchTypes lists every event a client reacts to with a full fetch.
var RefetchTypes = []string{
	TypeHello,
	TypePositionUpdate,
	TypePositionsSaved,
	TypeEntryDeleted,
	TypeDashboardCleared,
	TypeAllEntriesCleared,
}

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload is sent once to every client right after it connects.
type HelloPayload struct {
	ClientID string `json:"clientId"`
}

// PositionsSavedPayload reports how many rows a batch save inserted.
type PositionsSavedPayload struct {
	Count int `json:"count"`
}

// EntryDeletedPayload carries the id of the removed row.
type EntryDeletedPayload struct {
	ID uint `json:"id"`
}

// Encode builds the wire form of an envelope. A nil payload is omitted.
func Encode(eventType string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses the wire form of an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
