package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// EventLogger feeds dispatcher diagnostics into zerolog. Key-value pairs
// become typed fields; a trailing key without a value is kept under
// "!BADKEY" as slog does.
type EventLogger struct {
	logger zerolog.Logger
}

func NewEventLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (l *EventLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *EventLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *EventLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

func emit(e *zerolog.Event, msg string, kv []any) {
	if !e.Enabled() {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case string:
			e = e.Str(key, v)
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case int:
			e = e.Int(key, v)
		case uint8:
			e = e.Uint8(key, v)
		case uint64:
			e = e.Uint64(key, v)
		case bool:
			e = e.Bool(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	if len(kv)%2 == 1 {
		e = e.Interface("!BADKEY", kv[len(kv)-1])
	}
	e.Msg(msg)
}
