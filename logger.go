// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogstash

import (
	"context"
	"io"
	"log/slog"
)

// Logger wraps slog.Logger with the lifecycle of the [Handler] it logs
// through, so one value covers both everyday logging and shutdown.
//
// Use the standard slog methods (InfoContext, ErrorContext, and so on)
// plus the Critical family for the level slog does not name. Call Close
// during shutdown when logging to a file the handler opened.
type Logger struct {
	*slog.Logger
	handler *Handler
}

// NewLogger builds a [Handler] with [NewHandler] and wraps it in a
// ready-to-use Logger.
//
// Example:
//
//	logger, err := slogstash.NewLogger(os.Stdout)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//	logger.Info("listening", slog.String("addr", addr))
func NewLogger(w io.Writer, opts ...Option) (*Logger, error) {
	h, err := NewHandler(w, opts...)
	if err != nil {
		return nil, err
	}
	return &Logger{
		Logger:  slog.New(h),
		handler: h,
	}, nil
}

// Handler returns the underlying handler for callers that need direct
// access to its lifecycle or formatter.
func (l *Logger) Handler() *Handler {
	return l.handler
}

// Close releases resources owned by the underlying handler. It is safe
// to call multiple times.
func (l *Logger) Close() error {
	return l.handler.Close()
}

// ReopenLogFile reopens the underlying handler's log file for rotation
// tools. It is a no-op unless the handler targets a file.
func (l *Logger) ReopenLogFile() error {
	return l.handler.ReopenLogFile()
}

// SetLevel dynamically changes the minimum logging level. Records below
// it are discarded.
func (l *Logger) SetLevel(level slog.Level) {
	l.handler.SetLevel(level)
}

// Level returns the current minimum logging level.
func (l *Logger) Level() slog.Level {
	return l.handler.Level()
}

// Critical logs at [LevelCritical], the level above Error that slog has
// no method for.
func (l *Logger) Critical(msg string, args ...any) {
	l.Log(context.Background(), LevelCritical.Level(), msg, args...)
}

// CriticalContext logs at [LevelCritical] with contextual attributes
// from ctx.
func (l *Logger) CriticalContext(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelCritical.Level(), msg, args...)
}

// CriticalAttrsContext logs at [LevelCritical] using the more efficient
// LogAttrs call shape.
func (l *Logger) CriticalAttrsContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.LogAttrs(ctx, LevelCritical.Level(), msg, attrs...)
}
