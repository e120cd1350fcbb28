package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/OCAP2/bouncelog/pkg/core"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

type routeHandlers struct {
	svc    LogService
	logger *slog.Logger
}

// positionBody requires every coordinate to be present.
type positionBody struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

func (b positionBody) position() (core.Position3D, error) {
	if b.X == nil || b.Y == nil || b.Z == nil {
		return core.Position3D{}, fmt.Errorf("%w: x, y and z are required", errInvalidBody)
	}
	return core.Position3D{X: *b.X, Y: *b.Y, Z: *b.Z}, nil
}

type saveAllBody struct {
	Positions []positionBody `json:"positions"`
}

// entryID decodes a JSON number or a numeric string.
type entryID uint

func (id *entryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseUint(string(data), 10, 0)
	if err != nil {
		return fmt.Errorf("%w: id must be a non-negative integer", errInvalidBody)
	}
	*id = entryID(n)
	return nil
}

type deleteBody struct {
	ID *entryID `json:"id"`
}

func (h *routeHandlers) healthcheck(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (h *routeHandlers) savePosition(w http.ResponseWriter, r *http.Request) {
	var body positionBody
	if err := decodeJSON(r, &body); err != nil {
		h.badRequest(w, err)
		return
	}
	p, err := body.position()
	if err != nil {
		h.badRequest(w, err)
		return
	}

	if _, err := h.svc.Save(r.Context(), p); err != nil {
		writeText(w, http.StatusInternalServerError, "Error saving position.")
		return
	}
	writeText(w, http.StatusOK, "Position saved.")
}

func (h *routeHandlers) saveAllPositions(w http.ResponseWriter, r *http.Request) {
	var body saveAllBody
	if err := decodeJSON(r, &body); err != nil {
		h.badRequest(w, err)
		return
	}

	ps := make([]core.Position3D, 0, len(body.Positions))
	for i, pb := range body.Positions {
		p, err := pb.position()
		if err != nil {
			h.badRequest(w, fmt.Errorf("positions[%d]: %w", i, err))
			return
		}
		ps = append(ps, p)
	}

	n, err := h.svc.SaveAll(r.Context(), ps)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Error saving all positions.")
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("%d positions saved.", n))
}

func (h *routeHandlers) getPositions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.List(r.Context())
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Error fetching positions.")
		return
	}
	if rows == nil {
		rows = []core.Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		h.logger.Warn("Failed to write positions", "error", err)
	}
}

func (h *routeHandlers) deleteEntry(w http.ResponseWriter, r *http.Request) {
	var body deleteBody
	if err := decodeJSON(r, &body); err != nil {
		h.badRequest(w, err)
		return
	}
	if body.ID == nil {
		h.badRequest(w, fmt.Errorf("%w: id is required", errInvalidBody))
		return
	}

	if err := h.svc.Delete(r.Context(), uint(*body.ID)); err != nil {
		writeText(w, http.StatusInternalServerError, "Error deleting entry.")
		return
	}
	writeText(w, http.StatusOK, "Entry deleted.")
}

func (h *routeHandlers) clearDashboard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearDashboard(r.Context()); err != nil {
		writeText(w, http.StatusInternalServerError, "Error clearing dashboard.")
		return
	}
	writeText(w, http.StatusOK, "Dashboard cleared.")
}

func (h *routeHandlers) clearAllEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(r.Context()); err != nil {
		writeText(w, http.StatusInternalServerError, "Error clearing all entries.")
		return
	}
	writeText(w, http.StatusOK, "All entries cleared.")
}

func (h *routeHandlers) badRequest(w http.ResponseWriter, err error) {
	h.logger.Debug("Rejected request body", "error", err)
	writeText(w, http.StatusBadRequest, "Invalid request body.")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, errInvalidBody) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
