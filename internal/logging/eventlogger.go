package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// badKey labels a trailing value that has no key, as log/slog does.
const badKey = "!BADKEY"

// EventLogger writes the viewer's event routing logs (dispatcher.Logger) to
// the session's zerolog console. Records are tagged component=events.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger wraps logger.
func NewEventLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{logger: logger.With().Str("component", "events").Logger()}
}

func (l *EventLogger) Debug(msg string, keysAndValues ...any) {
	write(l.logger.Debug(), msg, keysAndValues)
}

func (l *EventLogger) Info(msg string, keysAndValues ...any) {
	write(l.logger.Info(), msg, keysAndValues)
}

func (l *EventLogger) Error(msg string, keysAndValues ...any) {
	write(l.logger.Error(), msg, keysAndValues)
}

// write keeps errors and durations typed so the console renders them natively.
func write(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			e = e.Interface(badKey, kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
