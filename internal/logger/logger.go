// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// level is shared by every logger built by New so that it can be raised
// or lowered after construction
var level = new(slog.LevelVar)

// New returns a logger writing in the given format ("text" or "json").
// It panics on an unknown format; config validation rejects those earlier.
func New(lvl, format string, w io.Writer) *slog.Logger {
	level.Set(ParseLevel(lvl))
	return slog.New(handlerForFormat(format, w))
}

// Level returns the level of loggers built by New
func Level() slog.Level {
	return level.Level()
}

// SetLevel changes the level of all loggers built by New
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

func handlerForFormat(format string, w io.Writer) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       level,
			AddSource:   true,
			ReplaceAttr: trimSource,
		})
	default:
		panic(fmt.Sprintf("invalid format: %s", format))
	}
}

// trimSource keeps the last two directories and the file name
func trimSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	parts := strings.Split(filepath.ToSlash(src.File), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	src.File = filepath.Join(parts...)
	return a
}

// ParseLevel maps debug, info, warn and error to slog levels; anything
// else is info
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
