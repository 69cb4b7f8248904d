package logger

import (
	"context"
	"io"
	"log/slog"
	"sort"
)

// MetadataHandler is a slog.Handler that stamps a fixed set of process
// attributes (service, instance) on every record before delegating to a
// JSON handler.
type MetadataHandler struct {
	handler slog.Handler
	attrs   []slog.Attr
}

// NewMetadataHandler creates a JSON handler on out that adds metadata to
// each record. Keys are emitted in sorted order; empty values are skipped.
func NewMetadataHandler(out io.Writer, opts *slog.HandlerOptions, metadata map[string]string) *MetadataHandler {
	var handlerOpts slog.HandlerOptions
	if opts != nil {
		handlerOpts = *opts
	}

	keys := make([]string, 0, len(metadata))
	for k, v := range metadata {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, metadata[k]))
	}

	return &MetadataHandler{
		handler: slog.NewJSONHandler(out, &handlerOpts),
		attrs:   attrs,
	}
}

// Enabled implements the slog.Handler interface.
func (h *MetadataHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements the slog.Handler interface.
func (h *MetadataHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MetadataHandler{handler: h.handler.WithAttrs(attrs), attrs: h.attrs}
}

// WithGroup implements the slog.Handler interface.
func (h *MetadataHandler) WithGroup(name string) slog.Handler {
	return &MetadataHandler{handler: h.handler.WithGroup(name), attrs: h.attrs}
}

// Handle implements the slog.Handler interface.
func (h *MetadataHandler) Handle(ctx context.Context, record slog.Record) error {
	enhanced := record.Clone()
	enhanced.AddAttrs(h.attrs...)
	return h.handler.Handle(ctx, enhanced)
}
