// Package loaderlog carries the loader's logging the way the
// teacher's telemetry package does: a slog.Handler that writes
// structured text to a console writer and mirrors a bounded window of
// events into an in-memory ring for later retrieval, rather than a
// from-scratch formatter (telemetry.SlogHandler's console+mirror
// split).
package loaderlog

import (
	"context"
	"io"
	"log/slog"
)

// Handler bridges log/slog to the debug console and to Ring, mirroring
// telemetry.SlogHandler's two-destination Handle.
type Handler struct {
	text  slog.Handler
	ring  *Ring
	attrs []slog.Attr
	group string
}

// NewHandler returns a Handler writing text-formatted records to w and
// mirroring accepted-opcode/rejected-frame events (anything at Info or
// above) into ring. ring may be nil to disable mirroring. A nil opts
// writes every level, Debug included, to w.
func NewHandler(w io.Writer, ring *Ring, opts *slog.HandlerOptions) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	return &Handler{
		text: slog.NewTextHandler(w, opts),
		ring: ring,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)
	if h.ring != nil && r.Level >= slog.LevelInfo {
		h.ring.Push(Event{
			Level:   r.Level,
			Message: r.Message,
		})
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &Handler{
		text:  h.text.WithAttrs(attrs),
		ring:  h.ring,
		attrs: newAttrs,
		group: h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &Handler{
		text:  h.text.WithGroup(name),
		ring:  h.ring,
		attrs: h.attrs,
		group: newGroup,
	}
}
