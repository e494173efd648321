package logging

import (
	"context"
	"log/slog"
)

// Keys of the link attributes stamped on every record.
const (
	KeyState   = "state"
	KeySession = "session"
	KeyPeer    = "peer"
)

// Link is the bridge context attached to log records. Empty fields are
// left out.
type Link struct {
	State   string
	Session string
	Peer    string
}

// LinkSource reports the link as it is when a record is handled.
type LinkSource interface {
	Link() Link
}

// LinkFunc adapts a function to LinkSource.
type LinkFunc func() Link

// Link calls f.
func (f LinkFunc) Link() Link { return f() }

// LinkHandler stamps records with the current Link. A key the record or a
// With call already carries wins over the stamp, so the poller's own
// "peer" is not logged twice.
type LinkHandler struct {
	inner  slog.Handler
	source LinkSource
	bound  map[string]bool
}

// NewLinkHandler wraps inner. A nil source stamps nothing.
func NewLinkHandler(inner slog.Handler, source LinkSource) *LinkHandler {
	return &LinkHandler{inner: inner, source: source}
}

func (h *LinkHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *LinkHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.source == nil {
		return h.inner.Handle(ctx, r)
	}
	link := h.source.Link()

	present := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})

	r = r.Clone()
	for _, kv := range [][2]string{
		{KeyState, link.State},
		{KeySession, link.Session},
		{KeyPeer, link.Peer},
	} {
		if kv[1] != "" && !present[kv[0]] && !h.bound[kv[0]] {
			r.AddAttrs(slog.String(kv[0], kv[1]))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *LinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return &LinkHandler{inner: h.inner.WithAttrs(attrs), source: h.source, bound: bound}
}

// WithGroup nests later attributes; the stamp lands in the group too.
func (h *LinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &LinkHandler{inner: h.inner.WithGroup(name), source: h.source, bound: h.bound}
}
