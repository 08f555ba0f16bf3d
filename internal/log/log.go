// Package log provides the structured logger used throughout the warehouse
// engine. It wraps log/slog with a dual-handler design that routes
// warn/error records to a separate writer than debug/info, matching the
// split-stream convention the rest of the module expects.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the logging surface consumed by the executor (through
// executor.Options.Logger). Callers always pass a context so request-scoped
// fields (report id, data source name) can be attached via slog.
type Logger interface {
	DebugContext(ctx context.Context, msg string, keysAndValues ...any)
	InfoContext(ctx context.Context, msg string, keysAndValues ...any)
	WarnContext(ctx context.Context, msg string, keysAndValues ...any)
	ErrorContext(ctx context.Context, msg string, keysAndValues ...any)
	SlogLogger() *slog.Logger
}

// NewLogger creates a new logger based on the provided format and level.
func NewLogger(format, level string, out, errW io.Writer) (Logger, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewStructuredLogger(out, errW, level)
	case "standard", "":
		return NewStdLogger(out, errW, level)
	default:
		return nil, fmt.Errorf("logging format invalid: %s", format)
	}
}

const (
	Debug = "DEBUG"
	Info  = "INFO"
	Warn  = "WARN"
	Error = "ERROR"
)

// SeverityToLevel returns the slog.Level for a severity string.
func SeverityToLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case Debug:
		return slog.LevelDebug, nil
	case Info, "":
		return slog.LevelInfo, nil
	case Warn:
		return slog.LevelWarn, nil
	case Error:
		return slog.LevelError, nil
	default:
		return slog.Level(-5), fmt.Errorf("invalid log level: %s", s)
	}
}

// StdLogger writes human-readable text records.
type StdLogger struct {
	outLogger *slog.Logger
	errLogger *slog.Logger
}

// NewStdLogger creates a Logger that uses out and err for informational and
// error messages respectively.
func NewStdLogger(outW, errW io.Writer, logLevel string) (Logger, error) {
	programLevel := new(slog.LevelVar)
	slogLevel, err := SeverityToLevel(logLevel)
	if err != nil {
		return nil, err
	}
	programLevel.Set(slogLevel)

	handlerOptions := &slog.HandlerOptions{Level: programLevel}
	return &StdLogger{
		outLogger: slog.New(slog.NewTextHandler(outW, handlerOptions)),
		errLogger: slog.New(slog.NewTextHandler(errW, handlerOptions)),
	}, nil
}

func (sl *StdLogger) DebugContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.outLogger.DebugContext(ctx, msg, keysAndValues...)
}

func (sl *StdLogger) InfoContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.outLogger.InfoContext(ctx, msg, keysAndValues...)
}

func (sl *StdLogger) WarnContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.errLogger.WarnContext(ctx, msg, keysAndValues...)
}

func (sl *StdLogger) ErrorContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.errLogger.ErrorContext(ctx, msg, keysAndValues...)
}

// SlogLogger returns a single *slog.Logger that routes records to the out or
// err stream based on level.
func (sl *StdLogger) SlogLogger() *slog.Logger {
	return slog.New(&splitHandler{outHandler: sl.outLogger.Handler(), errHandler: sl.errLogger.Handler()})
}

// StructuredLogger writes newline-delimited JSON records.
type StructuredLogger struct {
	outLogger *slog.Logger
	errLogger *slog.Logger
}

// NewStructuredLogger creates a Logger that logs messages as JSON.
func NewStructuredLogger(outW, errW io.Writer, logLevel string) (Logger, error) {
	programLevel := new(slog.LevelVar)
	slogLevel, err := SeverityToLevel(logLevel)
	if err != nil {
		return nil, err
	}
	programLevel.Set(slogLevel)

	opts := &slog.HandlerOptions{AddSource: true, Level: programLevel}
	return &StructuredLogger{
		outLogger: slog.New(slog.NewJSONHandler(outW, opts)),
		errLogger: slog.New(slog.NewJSONHandler(errW, opts)),
	}, nil
}

func (sl *StructuredLogger) DebugContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.outLogger.DebugContext(ctx, msg, keysAndValues...)
}

func (sl *StructuredLogger) InfoContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.outLogger.InfoContext(ctx, msg, keysAndValues...)
}

func (sl *StructuredLogger) WarnContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.errLogger.WarnContext(ctx, msg, keysAndValues...)
}

func (sl *StructuredLogger) ErrorContext(ctx context.Context, msg string, keysAndValues ...any) {
	sl.errLogger.ErrorContext(ctx, msg, keysAndValues...)
}

func (sl *StructuredLogger) SlogLogger() *slog.Logger {
	return slog.New(&splitHandler{outHandler: sl.outLogger.Handler(), errHandler: sl.errLogger.Handler()})
}

// splitHandler routes warn/error records to errHandler and everything else
// to outHandler.
type splitHandler struct {
	outHandler slog.Handler
	errHandler slog.Handler
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelWarn {
		return h.errHandler.Enabled(ctx, level)
	}
	return h.outHandler.Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.errHandler.Handle(ctx, r)
	}
	return h.outHandler.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{outHandler: h.outHandler.WithAttrs(attrs), errHandler: h.errHandler.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{outHandler: h.outHandler.WithGroup(name), errHandler: h.errHandler.WithGroup(name)}
}
