package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFWriter is the subset of *gelf.Writer the handler needs.
type GELFWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GELFHandler is a slog.Handler that ships records to Graylog.
type GELFHandler struct {
	writer   GELFWriter
	host     string
	facility string
	level    slog.Leveler
	attrs    []slog.Attr
	group    string
}

// NewGELFWriter dials a UDP GELF endpoint such as "localhost:12201".
func NewGELFWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer: %w", err)
	}
	return w, nil
}

// NewGELFHandler creates a handler writing to w at or above level.
func NewGELFHandler(w GELFWriter, facility string, level slog.Leveler) *GELFHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GELFHandler{
		writer:   w,
		host:     host,
		facility: facility,
		level:    level,
	}
}

// Enabled reports whether the level passes the configured threshold.
func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts the record to a GELF message and writes it.
func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	// GELF additional fields are prefixed with an underscore.
	for _, a := range h.attrs {
		extra["_"+a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, fa := range flatten(nil, h.group, a) {
			extra["_"+fa.Key] = fa.Value.Any()
		}
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return h.writer.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	})
}

// WithAttrs returns a handler that adds attrs to every message. Keys are
// qualified with the group open at this point, not with groups opened later.
func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = flatten(clone.attrs, h.group, a)
	}
	return &clone
}

// WithGroup returns a handler that prefixes subsequent keys with name.
func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// flatten appends a to out with its key qualified by group. Group values are
// expanded; an inline group (empty key) keeps the enclosing prefix.
func flatten(out []slog.Attr, group string, a slog.Attr) []slog.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = qualify(group, a.Key)
		}
		for _, ga := range v.Group() {
			out = flatten(out, sub, ga)
		}
		return out
	}
	if a.Key == "" {
		return out
	}
	return append(out, slog.Attr{Key: qualify(group, a.Key), Value: v})
}

// syslogLevel maps slog levels onto the syslog severities GELF uses.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
