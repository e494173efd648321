package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// GelfSender is the part of *gelf.Writer the handler needs.
type GelfSender interface {
	WriteMessage(m *gelf.Message) error
}

// GelfHandler ships records to a Graylog input. Attributes become GELF
// additional fields.
type GelfHandler struct {
	sender GelfSender
	level  slog.Leveler
	host   string
	fields map[string]any
	group  string
}

// NewGelfWriter dials a Graylog UDP input at addr.
func NewGelfWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("gelf writer %s: %w", addr, err)
	}
	return w, nil
}

// NewGelfHandler creates a handler writing to sender at or above level.
func NewGelfHandler(sender GelfSender, level slog.Leveler) *GelfHandler {
	host, _ := os.Hostname()
	return &GelfHandler{sender: sender, level: level, host: host}
}

func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.addExtra(extra, a)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	return h.sender.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(t.UnixNano()) / 1e9,
		Level:    syslogLevel(r.Level),
		Facility: "hil-bridge",
		Extra:    extra,
	})
}

func (h *GelfHandler) addExtra(extra map[string]any, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	// GELF additional fields carry a leading underscore
	extra["_"+key] = a.Value.Resolve().Any()
}

func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = make(map[string]any, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		clone.fields[k] = v
	}
	for _, a := range attrs {
		h.addExtra(clone.fields, a)
	}
	return &clone
}

func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

// syslogLevel maps slog levels onto the syslog severities GELF expects.
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
