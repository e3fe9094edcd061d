// Package xlog defines the logging interface used across the module.
//
// Design:
//   - every method takes a context.Context so trace/request identifiers can
//     be threaded through by a handler further down the chain
//   - dynamic level control via Leveler, kept separate from Logger so a
//     caller that only has a Logger isn't tempted to fiddle with levels
//   - method signatures accept only slog.Attr, avoiding the implicit
//     key/value pairing slog.Logger allows (which silently drops an odd
//     argument at runtime)
package xlog

import (
	"context"
	"log/slog"
)

// Logger is the logging sink consumed by the rest of the module.
//
// A nil Logger is never passed down; callers that don't want logging use
// Nop() instead, so call sites never need a nil check.
type Logger interface {
	// Debug logs at debug level.
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)

	// Info logs at info level.
	Info(ctx context.Context, msg string, attrs ...slog.Attr)

	// Warn logs at warn level.
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)

	// Error logs at error level.
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With returns a derived Logger carrying the given attributes on every
	// subsequent call.
	With(attrs ...slog.Attr) Logger
}

// Leveler exposes dynamic level control.
//
// Kept separate from Logger; a concrete implementation can be asserted to
// this interface when runtime level control is needed.
type Leveler interface {
	// SetLevel changes the active level at runtime.
	SetLevel(level Level)

	// GetLevel returns the active level.
	GetLevel() Level

	// Enabled reports whether the given level would actually be logged.
	// Useful to skip building expensive attrs before a disabled call.
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel composes Logger and Leveler.
type LoggerWithLevel interface {
	Logger
	Leveler
}
