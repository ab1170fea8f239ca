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

package logstash

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// DefaultTypeTag is the logging_type value stamped on every document
// unless overridden. The name is historical; documents were originally
// shipped to Logstash through a Redis channel.
const DefaultTypeTag = "redis"

// Environment variable names recognized by LoadConfig. Explicit options
// supplied at construction always win over the environment.
const (
	// EnvLevel sets the minimum record level handled. Accepts "debug",
	// "info", "warning", "error", "critical", or a numeric slog level.
	EnvLevel = "SLOGSTASH_LEVEL"

	// EnvTarget selects the output destination: "stdout", "stderr", or
	// "file:/path/to/log".
	EnvTarget = "SLOGSTASH_TARGET"

	// EnvExtraJSON holds a JSON object whose members merge into every
	// document's @fields payload as configured defaults.
	EnvExtraJSON = "SLOGSTASH_EXTRA_JSON"

	// EnvExtraPrefix marks individual default fields. The remainder of
	// the variable name, lowercased, becomes the field key. Individual
	// variables win over members of EnvExtraJSON.
	EnvExtraPrefix = "SLOGSTASH_EXTRA_"

	// EnvSourceHost overrides hostname detection for @source_host.
	EnvSourceHost = "SLOGSTASH_SOURCE_HOST"

	// EnvTypeTag overrides the logging_type tag.
	EnvTypeTag = "SLOGSTASH_TYPE_TAG"

	// EnvLoggerName sets the fallback worker_guid for records that do
	// not carry a logger name.
	EnvLoggerName = "SLOGSTASH_LOGGER_NAME"

	// EnvRuntimeFields toggles platform detection fields ("true"/"false").
	EnvRuntimeFields = "SLOGSTASH_RUNTIME_FIELDS"
)

// levelCritical mirrors the root package's CRITICAL level without
// creating an import cycle.
const levelCritical = slog.Level(12)

// Target identifies where formatted documents are written.
type Target int

const (
	// TargetWriter sends documents to the writer supplied at
	// construction. This is the default.
	TargetWriter Target = iota
	// TargetStdout redirects documents to standard output.
	TargetStdout
	// TargetStderr redirects documents to standard error.
	TargetStderr
	// TargetFile appends documents to a handler-managed file.
	TargetFile
)

// String returns a human-readable name for the target.
func (t Target) String() string {
	switch t {
	case TargetWriter:
		return "writer"
	case TargetStdout:
		return "stdout"
	case TargetStderr:
		return "stderr"
	case TargetFile:
		return "file"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Config carries handler settings derived from the environment.
type Config struct {
	Level            slog.Level
	LevelSet         bool
	Target           Target
	FilePath         string
	Extra            map[string]any
	SourceHost       string
	TypeTag          string
	LoggerName       string
	RuntimeFields    bool
	RuntimeFieldsSet bool
}

// LoadConfig reads the SLOGSTASH_* environment. Malformed values warn on
// stderr and fall back to defaults. The one exception is a file target
// with no usable path, which is an error: silently discarding documents
// is worse than failing construction.
func LoadConfig() (Config, error) {
	cfg := Config{
		Target:  TargetWriter,
		TypeTag: DefaultTypeTag,
	}

	if raw, ok := os.LookupEnv(EnvLevel); ok {
		cfg.Level = ParseLevelEnv(raw, slog.LevelInfo)
		cfg.LevelSet = true
	}

	if raw, ok := os.LookupEnv(EnvTarget); ok {
		target, path, err := ParseTarget(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Target = target
		cfg.FilePath = path
	}

	cfg.Extra = loadExtraFieldsEnv()
	cfg.SourceHost = strings.TrimSpace(os.Getenv(EnvSourceHost))
	if raw := strings.TrimSpace(os.Getenv(EnvTypeTag)); raw != "" {
		cfg.TypeTag = raw
	}
	cfg.LoggerName = strings.TrimSpace(os.Getenv(EnvLoggerName))

	if raw, ok := os.LookupEnv(EnvRuntimeFields); ok {
		cfg.RuntimeFields = ParseBoolEnv(raw, false)
		cfg.RuntimeFieldsSet = true
	}

	return cfg, nil
}

// ParseTarget interprets a target value. File targets take the form
// "file:/path/to/log"; the path keeps its original case. An empty value
// or unrecognized scheme falls back to TargetWriter, the latter with a
// stderr warning.
func ParseTarget(raw string) (Target, string, error) {
	trimmed := strings.TrimSpace(raw)
	lowered := strings.ToLower(trimmed)
	switch {
	case lowered == "":
		return TargetWriter, "", nil
	case lowered == "stdout":
		return TargetStdout, "", nil
	case lowered == "stderr":
		return TargetStderr, "", nil
	case strings.HasPrefix(lowered, "file:"):
		path := strings.TrimSpace(trimmed[len("file:"):])
		if path == "" {
			return TargetWriter, "", fmt.Errorf("%w: %q names no file path", ErrInvalidTarget, raw)
		}
		return TargetFile, path, nil
	default:
		fmt.Fprintf(os.Stderr, "[slogstash config] WARNING: Invalid log target value %q in env var, defaulting to %v\n", raw, TargetWriter)
		return TargetWriter, "", nil
	}
}

// ParseFormatterConfig parses the JSON configuration payload accepted at
// construction. Recognized keys are "extra", an object merged into every
// document's @fields, and "source_host", a string overriding hostname
// detection when non-empty. Unknown keys are ignored so payloads can
// carry deployment metadata. Unlike environment parsing, a malformed
// payload is an error: the caller asked for this configuration
// explicitly.
func ParseFormatterConfig(payload string) (map[string]any, string, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var extra map[string]any
	if rawExtra, ok := parsed["extra"]; ok && rawExtra != nil {
		extraMap, ok := rawExtra.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("%w: \"extra\" must be a JSON object, got %T", ErrInvalidConfig, rawExtra)
		}
		extra = extraMap
	}

	sourceHost := ""
	if rawHost, ok := parsed["source_host"]; ok && rawHost != nil {
		host, ok := rawHost.(string)
		if !ok {
			return nil, "", fmt.Errorf("%w: \"source_host\" must be a string, got %T", ErrInvalidConfig, rawHost)
		}
		sourceHost = host
	}

	return extra, sourceHost, nil
}

// loadExtraFieldsEnv merges the EnvExtraJSON object with individual
// EnvExtraPrefix variables, the latter winning on key collisions.
func loadExtraFieldsEnv() map[string]any {
	extra := map[string]any{}

	if raw := strings.TrimSpace(os.Getenv(EnvExtraJSON)); raw != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			fmt.Fprintf(os.Stderr, "[slogstash config] WARNING: Failed to parse JSON from %s: %v\n", EnvExtraJSON, err)
		} else {
			for key, val := range parsed {
				extra[key] = val
			}
		}
	}

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == EnvExtraJSON || !strings.HasPrefix(name, EnvExtraPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvExtraPrefix))
		if key == "" {
			continue
		}
		extra[key] = value
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}

// ParseLevelEnv interprets a level string using the document level
// vocabulary. Numeric slog levels are accepted as an escape hatch.
// Unrecognized values warn on stderr and fall back.
func ParseLevelEnv(raw string, fallback slog.Level) slog.Level {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return fallback
	}

	switch trimmed {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical", "fatal":
		return levelCritical
	default:
		if levelVal, err := strconv.Atoi(trimmed); err == nil {
			return slog.Level(levelVal)
		}
		fmt.Fprintf(os.Stderr, "[slogstash config] WARNING: Invalid log level value %q in env var, defaulting to %v\n", raw, fallback)
		return fallback
	}
}

// ParseBoolEnv interprets common boolean spellings. Unrecognized values
// warn on stderr and fall back.
func ParseBoolEnv(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return fallback
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		fmt.Fprintf(os.Stderr, "[slogstash config] WARNING: Invalid boolean value %q in env var, defaulting to %v\n", raw, fallback)
		return fallback
	}
}
