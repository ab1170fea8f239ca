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
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Level represents the severity of a log event, extending slog.Level with
// the CRITICAL severity used by the document loglevel vocabulary. It keeps
// the underlying integer representation compatible with slog.Level.
type Level slog.Level

// Severity constants mapped onto slog.Level integer values. Names follow
// the vocabulary documents carry in their loglevel field.
const (
	// LevelDebug is the standard slog debug level.
	LevelDebug Level = Level(slog.LevelDebug) // -4

	// LevelInfo is the standard slog info level and the handler default.
	LevelInfo Level = Level(slog.LevelInfo) // 0

	// LevelWarning is the standard slog warn level. Documents spell it
	// WARNING rather than slog's WARN.
	LevelWarning Level = Level(slog.LevelWarn) // 4

	// LevelError is the standard slog error level.
	LevelError Level = Level(slog.LevelError) // 8

	// LevelCritical ranks above Error for failures that need immediate
	// operator attention.
	LevelCritical Level = 12
)

// String returns the canonical name of the Level as it appears in a
// document's loglevel field (e.g. "DEBUG", "WARNING", "CRITICAL"). For
// levels between defined constants it returns the nearest lower name plus
// the offset (e.g. "INFO+2"). Levels below DEBUG fall back to the
// standard slog rendering.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	}

	var baseLevel Level
	var baseName string

	switch {
	case l < LevelDebug:
		return slog.Level(l).String()
	case l < LevelInfo:
		baseLevel = LevelDebug
		baseName = "DEBUG"
	case l < LevelWarning:
		baseLevel = LevelInfo
		baseName = "INFO"
	case l < LevelError:
		baseLevel = LevelWarning
		baseName = "WARNING"
	case l < LevelCritical:
		baseLevel = LevelError
		baseName = "ERROR"
	default:
		baseLevel = LevelCritical
		baseName = "CRITICAL"
	}

	offset := int(l - baseLevel)
	return fmt.Sprintf("%s+%d", baseName, offset)
}

// Level returns the underlying slog.Level value. This method lets
// slogstash.Level satisfy the slog.Leveler interface, enabling its use in
// slog.HandlerOptions.Level and the standard slog.Logger methods.
func (l Level) Level() slog.Level {
	return slog.Level(l)
}

// ParseLevel converts a level name into a Level. Recognized names are
// "debug", "info", "warn"/"warning", "error", and "critical"/"fatal", in
// any case. Numeric slog values are accepted as an escape hatch. Unlike
// the environment parsing, unknown names are an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return Level(n), nil
		}
		return LevelInfo, fmt.Errorf("slogstash: unknown level %q", s)
	}
}
