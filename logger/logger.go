// Package logger sets up slog for the process and lets attributes ride
// along on a context so every record in a sync run carries them.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const attrKey contextKey = "attrKey"

// Setup installs the default logger: text or json output at the given
// level, with context attributes folded into every record.
func Setup(format, level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		base = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(NewContextHandler(base)))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextHandler implements [slog.Handler] interface and adds to the log
// record any attributes passed into the context with the [attrKey].
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a new instance of ContextHandler
// with `handler` as the base.
func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{Handler: handler}
}

// Handle implements [slog.Handler] interface.
func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if !ok {
		return h.Handler.Handle(ctx, record)
	}

	// Add anything we got from the context to the current record.
	record.AddAttrs(attrs...)

	// Relinquish to the base handler.
	return h.Handler.Handle(ctx, record)
}

// Ctx creates a new context with the attached attributes.
//
// These will get logged later by the [ContextHandler] if given the resulting context.
func Ctx(ctx context.Context, toAppend ...slog.Attr) context.Context {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if !ok {
		attrs = []slog.Attr{}
	}

	attrs = append(attrs, toAppend...)
	return context.WithValue(ctx, attrKey, attrs)
}
