package xlog

import (
	"context"
	"log/slog"
	"time"
)

var (
	_ Logger          = (*xlogger)(nil)
	_ Leveler         = (*xlogger)(nil)
	_ LoggerWithLevel = (*xlogger)(nil)
)

// xlogger is the default Logger implementation, backed by an slog.Handler.
type xlogger struct {
	handler  slog.Handler
	levelVar *slog.LevelVar
}

// New wraps an slog.Handler as a Logger with runtime level control.
// If handler is nil, New returns Nop().
func New(handler slog.Handler, levelVar *slog.LevelVar) LoggerWithLevel {
	if handler == nil {
		return Nop()
	}
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	return &xlogger{handler: handler, levelVar: levelVar}
}

// NewText builds a Logger writing slog's text format, the default shape
// used when no logger is supplied explicitly to an operator CLI.
func NewText(w interface {
	Write(p []byte) (n int, err error)
}, level Level) LoggerWithLevel {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(level))
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})
	return New(h, levelVar)
}

//go:noinline
func (l *xlogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	_ = l.handler.Handle(ctx, r)
}

func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

// With returns a derived Logger carrying the given attributes.
func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return &xlogger{handler: l.handler.WithAttrs(attrs), levelVar: l.levelVar}
}

// SetLevel changes the active level at runtime.
func (l *xlogger) SetLevel(level Level) {
	l.levelVar.Set(slog.Level(level))
}

// GetLevel returns the active level.
func (l *xlogger) GetLevel() Level {
	return Level(l.levelVar.Level())
}

// Enabled reports whether the given level would actually be logged.
func (l *xlogger) Enabled(ctx context.Context, level Level) bool {
	return l.handler.Enabled(ctx, slog.Level(level))
}

// nopLogger discards everything. Used when no Logger is configured, so
// call sites never need a nil check.
type nopLogger struct{}

var nop = nopLogger{}

// Nop returns a Logger that discards everything.
func Nop() LoggerWithLevel { return nop }

func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}
func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
func (nopLogger) With(...slog.Attr) Logger                    { return nop }
func (nopLogger) SetLevel(Level)                              {}
func (nopLogger) GetLevel() Level                             { return LevelInfo }
func (nopLogger) Enabled(context.Context, Level) bool          { return false }
