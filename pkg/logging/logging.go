// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package logging provides a structured logging interface with slog-style
// levels for the apitune library and its command-line front end.
package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// Common logging levels for structured logging.
const (
	LevelTrace = slog.Level(-8) // most verbose
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError // least verbose
)

// Logger defines a generic logging interface following slog style with log levels.
type Logger interface {
	// Message logs a message at the specified level with optional format arguments.
	Message(ctx context.Context, level slog.Level, msg string, args ...any)

	// Error logs an error at the specified level with optional format arguments.
	Error(ctx context.Context, level slog.Level, err error, msg string, args ...any)

	// WithContext returns a new Logger that appends the specified context to the
	// existing prefix. Each call extends the prefix chain without affecting the
	// original logger instance.
	WithContext(context string) Logger
}

// NewLogger creates a Logger backed by the provided zerolog.Logger.
func NewLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

// NewNopLogger creates a Logger that discards all messages.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

type zerologLogger struct {
	logger zerolog.Logger
	prefix string
}

func (l *zerologLogger) Message(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.event(level).Msg(l.prefix + fmt.Sprintf(msg, args...))
}

func (l *zerologLogger) Error(ctx context.Context, level slog.Level, err error, msg string, args ...any) {
	l.event(level).Err(err).Msg(l.prefix + fmt.Sprintf(msg, args...))
}

func (l *zerologLogger) WithContext(context string) Logger {
	return &zerologLogger{
		logger: l.logger,
		prefix: l.prefix + context,
	}
}

// event maps a slog level onto the corresponding zerolog event.
func (l *zerologLogger) event(level slog.Level) *zerolog.Event {
	switch {
	case level < LevelDebug:
		return l.logger.Trace()
	case level < LevelInfo:
		return l.logger.Debug()
	case level < LevelWarn:
		return l.logger.Info()
	case level < LevelError:
		return l.logger.Warn()
	default:
		return l.logger.Error()
	}
}
