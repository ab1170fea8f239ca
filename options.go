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
	"log/slog"

	"github.com/slogstash/slogstash/internal/logstash"
)

// Target defines the destination for formatted documents.
// It is an alias for the internal logstash.Target type.
type Target = logstash.Target

const (
	// TargetWriter sends documents to the writer passed to NewHandler
	// (default).
	TargetWriter Target = logstash.TargetWriter
	// TargetStdout directs documents to standard output.
	TargetStdout Target = logstash.TargetStdout
	// TargetStderr directs documents to standard error.
	TargetStderr Target = logstash.TargetStderr
	// TargetFile appends documents to a handler-managed file.
	TargetFile Target = logstash.TargetFile
)

// Option configures a Formatter, Handler, or Logger during construction.
// Options are applied sequentially, allowing later options to override
// earlier ones or settings derived from environment variables. Options
// that only concern the handler layer are ignored by New.
type Option func(*options)

// options holds the configurable settings collected before construction.
// Fields are pointers so an explicitly set zero value can be told apart
// from an unset option, which falls back to environment variables or
// defaults.
type options struct {
	// Formatter settings.
	configPayload *string
	extraSets     []map[string]any
	sourceHost    *string
	hostIP        *string
	typeTag       *string
	loggerName    *string
	coerceFunc    func(any) string
	encodeFunc    EncodeFunc

	// Handler settings.
	level             *slog.Level
	levelVar          *slog.LevelVar
	internalLogger    *slog.Logger
	addSource         *bool
	stackTraceEnabled *bool
	stackTraceLevel   *slog.Level
	traceCorrelation  *bool
	runtimeFields     *bool
	logTarget         *Target
	logFilePath       *string
	middlewares       []Middleware
	initialAttrs      []slog.Attr
	initialGroup      string
}

func applyOptions(opts []Option) *options {
	builder := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}
	return builder
}

// WithConfigJSON returns an Option that supplies the JSON configuration
// payload. Recognized keys are "extra", an object of default fields
// merged into every document's @fields, and "source_host", a non-empty
// string overriding hostname detection. Unknown keys are ignored.
// Construction fails with ErrInvalidConfig when the payload is not a
// JSON object or a recognized key has the wrong shape.
func WithConfigJSON(payload string) Option {
	return func(o *options) {
		p := payload
		o.configPayload = &p
	}
}

// WithExtraFields returns an Option that merges fields into the
// configured defaults. Repeated use merges cumulatively, later calls
// winning on key collision; all of them are applied on top of any
// "extra" object from WithConfigJSON and the environment.
func WithExtraFields(fields map[string]any) Option {
	return func(o *options) {
		o.extraSets = append(o.extraSets, fields)
	}
}

// WithSourceHost returns an Option that sets @source_host verbatim,
// skipping hostname detection entirely. Useful for tests and for callers
// that already know their externally visible name.
func WithSourceHost(host string) Option {
	return func(o *options) {
		h := host
		o.sourceHost = &h
	}
}

// WithHostIP returns an Option that sets @host verbatim, skipping
// address resolution entirely. Pair it with WithSourceHost to construct
// formatters without any name-service traffic.
func WithHostIP(ip string) Option {
	return func(o *options) {
		addr := ip
		o.hostIP = &addr
	}
}

// WithTypeTag returns an Option that overrides the logging_type value
// stamped on every document. The default is "redis".
func WithTypeTag(tag string) Option {
	return func(o *options) {
		t := tag
		o.typeTag = &t
	}
}

// WithLoggerName returns an Option that sets the worker_guid used for
// records that do not carry a logger name of their own.
func WithLoggerName(name string) Option {
	return func(o *options) {
		n := name
		o.loggerName = &n
	}
}

// WithCoerceFunc returns an Option that replaces the default unknown-type
// coercion. The function is the terminal fallback for the JSON encoder:
// it must accept any value and return a string, and must never panic.
// Passing nil keeps the default.
func WithCoerceFunc(fn func(v any) string) Option {
	return func(o *options) {
		if fn != nil {
			o.coerceFunc = fn
		}
	}
}

// WithEncodeFunc returns an Option that replaces the default JSON
// encoder used to serialize assembled documents. Passing nil keeps the
// default.
func WithEncodeFunc(fn EncodeFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.encodeFunc = fn
		}
	}
}

// WithLevel returns an Option that sets the minimum logging level for
// handlers. This setting overrides the SLOGSTASH_LEVEL environment
// variable. Use standard slog.Level constants or slogstash.Level
// constants cast to slog.Level (e.g. slog.Level(slogstash.LevelCritical)).
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		lvl := level
		o.level = &lvl
	}
}

// WithLevelVar returns an Option that installs a caller-owned
// slog.LevelVar as the handler's level control, for programs that adjust
// verbosity at runtime. It takes precedence over WithLevel and the
// environment.
func WithLevelVar(levelVar *slog.LevelVar) Option {
	return func(o *options) {
		o.levelVar = levelVar
	}
}

// WithInternalLogger returns an Option that sets the logger used for the
// handler's own diagnostics (write failures, file reopen problems).
// Defaults to a discarding logger so a broken sink cannot recurse into
// itself.
func WithInternalLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.internalLogger = logger
	}
}

// WithSourceLocationEnabled returns an Option that enables or disables a
// source_location member (file, line, function) inside @fields.
// Enabling it costs a frame lookup per record. Defaults to false.
func WithSourceLocationEnabled(enabled bool) Option {
	return func(o *options) {
		src := enabled
		o.addSource = &src
	}
}

// WithStackTraceEnabled returns an Option that enables or disables
// automatic stack capture for records at or above the stack trace level
// that carry an error without one. Defaults to false.
func WithStackTraceEnabled(enabled bool) Option {
	return func(o *options) {
		st := enabled
		o.stackTraceEnabled = &st
	}
}

// WithStackTraceLevel returns an Option that sets the minimum level at
// which automatic stack capture applies. Defaults to slog.LevelError.
func WithStackTraceLevel(level slog.Level) Option {
	return func(o *options) {
		lvl := level
		o.stackTraceLevel = &lvl
	}
}

// WithTraceCorrelation returns an Option that enables or disables
// trace_id, span_id, and trace_sampled fields taken from the OpenTelemetry
// span context of the record's context. Defaults to true.
func WithTraceCorrelation(enabled bool) Option {
	return func(o *options) {
		tc := enabled
		o.traceCorrelation = &tc
	}
}

// WithRuntimeFields returns an Option that enables or disables default
// fields describing the detected runtime platform (Kubernetes, Compute
// Engine). Detected fields sit below configured extras in the merge
// order. Defaults to false; overrides SLOGSTASH_RUNTIME_FIELDS.
func WithRuntimeFields(enabled bool) Option {
	return func(o *options) {
		rf := enabled
		o.runtimeFields = &rf
	}
}

// WithRedirectToStdout returns an Option that sends documents to
// standard output regardless of the writer passed to NewHandler.
func WithRedirectToStdout() Option {
	return func(o *options) {
		t := TargetStdout
		o.logTarget = &t
	}
}

// WithRedirectToStderr returns an Option that sends documents to
// standard error regardless of the writer passed to NewHandler.
func WithRedirectToStderr() Option {
	return func(o *options) {
		t := TargetStderr
		o.logTarget = &t
	}
}

// WithRedirectToFile returns an Option that appends documents to the
// file at path. The handler opens and owns the file; Close releases it
// and ReopenLogFile reopens it for rotation tools.
func WithRedirectToFile(path string) Option {
	return func(o *options) {
		t := TargetFile
		o.logTarget = &t
		p := path
		o.logFilePath = &p
	}
}

// WithMiddleware returns an Option that wraps the constructed handler
// core. Middlewares run in the order supplied, each seeing the records
// the previous one passed through.
func WithMiddleware(mw Middleware) Option {
	return func(o *options) {
		if mw != nil {
			o.middlewares = append(o.middlewares, mw)
		}
	}
}

// WithAttrs returns an Option that attaches attributes to every record
// the handler processes, as if Handler.WithAttrs had been called
// immediately after construction.
func WithAttrs(attrs []slog.Attr) Option {
	return func(o *options) {
		o.initialAttrs = append(o.initialAttrs, attrs...)
	}
}

// WithGroup returns an Option that opens a group namespace for all
// attributes logged through the handler, as if Handler.WithGroup had
// been called immediately after construction.
func WithGroup(name string) Option {
	return func(o *options) {
		o.initialGroup = name
	}
}
