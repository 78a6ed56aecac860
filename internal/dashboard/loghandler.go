package dashboard

import (
	"context"
	"log/slog"
	"time"
)

// BroadcastHandler mirrors log records to a Hub and delegates to inner.
type BroadcastHandler struct {
	inner slog.Handler
	hub   *Hub
	attrs []slog.Attr
}

// NewBroadcastHandler creates a handler that broadcasts to hub and delegates to inner.
func NewBroadcastHandler(hub *Hub, inner slog.Handler) *BroadcastHandler {
	return &BroadcastHandler{
		inner: inner,
		hub:   hub,
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[a.Key] = v
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.hub.Broadcast(Message{
		Type:  "log",
		Level: r.Level.String(),
		Msg:   r.Message,
		Time:  r.Time.Format(time.RFC3339),
		Attrs: attrs,
	})

	return h.inner.Handle(ctx, r)
}

// WithAttrs keeps the attrs for broadcasting as well as passing them on.
// Group names are not reflected in broadcast keys.
func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &BroadcastHandler{
		inner: h.inner.WithAttrs(attrs),
		hub:   h.hub,
		attrs: merged,
	}
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	return &BroadcastHandler{
		inner: h.inner.WithGroup(name),
		hub:   h.hub,
		attrs: h.attrs,
	}
}
