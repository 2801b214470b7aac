package conduit

import (
	"context"
	"log/slog"
)

// discardHandler is a slog.Handler that drops every record. Used as the
// zero-value logger fallback so components never need a nil check.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs(attrs []slog.Attr) slog.Handler  { return discardHandler{} }
func (discardHandler) WithGroup(name string) slog.Handler        { return discardHandler{} }

// nopLogger discards all output. Default for components constructed without
// an explicit logger.
var nopLogger = slog.New(discardHandler{})
