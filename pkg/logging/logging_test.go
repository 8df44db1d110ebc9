// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerMessageLevels(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{name: "trace", level: LevelTrace, want: "trace"},
		{name: "debug", level: LevelDebug, want: "debug"},
		{name: "info", level: LevelInfo, want: "info"},
		{name: "warn", level: LevelWarn, want: "warn"},
		{name: "error", level: LevelError, want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(zerolog.New(&buf))
			logger.Message(context.Background(), tt.level, "msg")
			assert.Contains(t, buf.String(), `"level":"`+tt.want+`"`)
			assert.Contains(t, buf.String(), "msg")
		})
	}
}

func TestLoggerFormatsArguments(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))
	logger.Message(context.Background(), LevelInfo, "trial %d of %d", 1, 5)
	assert.Contains(t, buf.String(), "trial 1 of 5")
}

func TestLoggerErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))
	logger.Error(context.Background(), LevelWarn, errors.New("boom"), "failed")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "failed")
}

func TestLoggerWithContextPrefixChains(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf)).WithContext("run: ").WithContext("trial: ")
	logger.Message(context.Background(), LevelInfo, "done")
	assert.Contains(t, buf.String(), "run: trial: done")
}

func TestNopLoggerDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		logger := NewNopLogger()
		logger.Message(context.Background(), LevelInfo, "ignored")
		logger.Error(context.Background(), LevelError, errors.New("x"), "ignored")
	})
}
