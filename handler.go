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
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/slogstash/slogstash/internal/logstash"
)

// Middleware adapts a [slog.Handler] before it is exposed by [Handler].
// Middleware functions run in the order they are supplied, wrapping the
// core handler from last to first to mirror idiomatic HTTP middleware
// composition.
type Middleware func(slog.Handler) slog.Handler

// Handler routes slog records through a [Formatter] and writes the
// resulting documents, one JSON object per line, to the configured
// destination. It supports runtime level changes, file rotation, trace
// correlation, and middleware wrapping.
type Handler struct {
	slog.Handler

	formatter        *Formatter
	cfg              *handlerConfig
	internalLogger   *slog.Logger
	switchableWriter *SwitchableWriter
	ownedFile        *os.File
	levelVar         *slog.LevelVar

	mu        sync.Mutex
	closeOnce sync.Once
}

// handlerConfig is the merged view of environment variables and options
// that shapes a handler. Options win over the environment; built-in
// defaults apply when neither speaks.
type handlerConfig struct {
	Level             slog.Level
	AddSource         bool
	StackTraceEnabled bool
	StackTraceLevel   slog.Level
	TraceCorrelation  bool
	RuntimeFields     bool

	Target   Target
	FilePath string
	Writer   io.Writer

	Middlewares  []Middleware
	InitialAttrs []slog.Attr
	InitialGroup string
}

// NewHandler builds a slog [Handler] that emits logstash documents. It
// reads the SLOGSTASH_* environment variables for configuration defaults
// and then applies any provided [Option] values on top. The handler
// writes to defaultWriter unless a redirect option or environment
// override says otherwise.
//
// Example:
//
//	h, err := slogstash.NewHandler(os.Stdout,
//		slogstash.WithLevel(slog.LevelInfo),
//		slogstash.WithExtraFields(map[string]any{"service": "billing"}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := slog.New(h)
//	logger.Info("ready")
func NewHandler(defaultWriter io.Writer, opts ...Option) (*Handler, error) {
	builder := applyOptions(opts)

	internalLogger := builder.internalLogger
	if internalLogger == nil {
		internalLogger = slog.New(slog.DiscardHandler)
	}

	envCfg, err := logstash.LoadConfig()
	if err != nil {
		return nil, err
	}

	cfg := handlerConfig{
		Level:            slog.LevelInfo,
		StackTraceLevel:  slog.LevelError,
		TraceCorrelation: true,
		Target:           envCfg.Target,
		FilePath:         envCfg.FilePath,
		RuntimeFields:    envCfg.RuntimeFields,
	}
	if envCfg.LevelSet {
		cfg.Level = envCfg.Level
	}

	applyHandlerOptions(&cfg, builder)

	formatter, err := newFormatter(builder, envCfg)
	if err != nil {
		return nil, err
	}

	if cfg.RuntimeFields {
		enrichFromRuntime(formatter, DetectRuntimeInfo())
	}

	levelVar := builder.levelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	levelVar.Set(cfg.Level)

	// The file open comes after every other fallible step so an error
	// return never leaks a descriptor.
	switchWriter, ownedFile, err := resolveWriter(&cfg, defaultWriter)
	if err != nil {
		return nil, err
	}

	cfgPtr := &cfg
	core := newDocumentHandler(cfgPtr, formatter, levelVar, internalLogger)
	handler := slog.Handler(core)
	for i := len(cfgPtr.Middlewares) - 1; i >= 0; i-- {
		handler = cfgPtr.Middlewares[i](handler)
	}

	return &Handler{
		Handler:          handler,
		formatter:        formatter,
		cfg:              cfgPtr,
		internalLogger:   internalLogger,
		switchableWriter: switchWriter,
		ownedFile:        ownedFile,
		levelVar:         levelVar,
	}, nil
}

// applyHandlerOptions merges user-supplied options into the environment
// derived handler configuration.
func applyHandlerOptions(cfg *handlerConfig, o *options) {
	if o.level != nil {
		cfg.Level = *o.level
	}
	if o.levelVar != nil {
		cfg.Level = o.levelVar.Level()
	}
	if o.addSource != nil {
		cfg.AddSource = *o.addSource
	}
	if o.stackTraceEnabled != nil {
		cfg.StackTraceEnabled = *o.stackTraceEnabled
	}
	if o.stackTraceLevel != nil {
		cfg.StackTraceLevel = *o.stackTraceLevel
	}
	if o.traceCorrelation != nil {
		cfg.TraceCorrelation = *o.traceCorrelation
	}
	if o.runtimeFields != nil {
		cfg.RuntimeFields = *o.runtimeFields
	}
	if o.logTarget != nil {
		cfg.Target = *o.logTarget
		cfg.FilePath = ""
		if o.logFilePath != nil {
			cfg.FilePath = strings.TrimSpace(*o.logFilePath)
		}
	}
	if len(o.middlewares) > 0 {
		cfg.Middlewares = append([]Middleware(nil), o.middlewares...)
	}
	if len(o.initialAttrs) > 0 {
		cfg.InitialAttrs = append([]slog.Attr(nil), o.initialAttrs...)
	}
	if o.initialGroup != "" {
		cfg.InitialGroup = strings.TrimSpace(o.initialGroup)
	}
}

// enrichFromRuntime merges platform-detected fields below the formatter's
// configured extras and fills the source host slot when nothing else
// resolved one.
func enrichFromRuntime(f *Formatter, info RuntimeInfo) {
	if len(info.Fields) > 0 {
		merged := logstash.DeepCopyMap(info.Fields)
		for key, val := range f.extra {
			merged[key] = val
		}
		f.extra = merged
	}
	if f.sourceHost == "" && info.Hostname != "" {
		f.sourceHost = info.Hostname
		if f.hostIP == "" {
			f.hostIP = logstash.ResolveHostIP(info.Hostname)
		}
	}
}

// resolveWriter maps the configured target onto a concrete writer,
// opening the log file for file targets. The returned SwitchableWriter
// and file are non-nil only for file targets.
func resolveWriter(cfg *handlerConfig, defaultWriter io.Writer) (*SwitchableWriter, *os.File, error) {
	switch cfg.Target {
	case TargetStdout:
		cfg.Writer = os.Stdout
	case TargetStderr:
		cfg.Writer = os.Stderr
	case TargetFile:
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("slogstash: file target requires a path: %w", ErrInvalidTarget)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("slogstash: open log file %q: %w", cfg.FilePath, err)
		}
		switchWriter := NewSwitchableWriter(file)
		cfg.Writer = switchWriter
		return switchWriter, file, nil
	default:
		if defaultWriter != nil {
			cfg.Writer = defaultWriter
		} else {
			cfg.Writer = os.Stdout
		}
	}
	return nil, nil, nil
}

// Close releases any resources owned by the handler, such as log files
// opened for file targets. Writers supplied by the caller are never
// closed. It is safe to call multiple times; only the first invocation
// performs work.
func (h *Handler) Close() error {
	var firstErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		closeOwnedFile := h.ownedFile != nil
		if h.switchableWriter != nil {
			if err := h.switchableWriter.Close(); err != nil {
				firstErr = err
				h.internalLogger.Error("failed to close switchable writer", slog.Any("error", err))
			} else {
				closeOwnedFile = false
			}
			h.switchableWriter = nil
		}
		if closeOwnedFile && h.ownedFile != nil {
			if err := h.ownedFile.Close(); err != nil && firstErr == nil {
				firstErr = err
				h.internalLogger.Error("failed to close log file", slog.Any("error", err))
			}
		}
		h.ownedFile = nil
	})
	return firstErr
}

// ReopenLogFile closes and reopens the handler's log file so external
// rotation tools can move the old file aside. If the handler is not
// writing to a file the method is a no-op.
func (h *Handler) ReopenLogFile() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg == nil || h.cfg.FilePath == "" || h.switchableWriter == nil {
		return nil
	}

	if h.ownedFile != nil {
		if err := h.ownedFile.Close(); err != nil {
			h.internalLogger.Warn("error closing log file before reopen", slog.Any("error", err))
		}
	}

	file, err := os.OpenFile(h.cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("slogstash: reopen log file %q: %w", h.cfg.FilePath, err)
	}

	h.ownedFile = file
	h.switchableWriter.SetWriter(file)
	return nil
}

// SetLevel updates the minimum slog level accepted by the handler at
// runtime. Calls are safe for concurrent use.
func (h *Handler) SetLevel(level slog.Level) {
	if h == nil || h.levelVar == nil {
		return
	}
	h.levelVar.Set(level)
}

// Level reports the handler's current minimum slog level.
func (h *Handler) Level() slog.Level {
	if h == nil || h.levelVar == nil {
		return slog.LevelInfo
	}
	return h.levelVar.Level()
}

// LevelVar returns the underlying slog.LevelVar used to gate records. It
// can be integrated with external configuration systems for dynamic
// level control.
func (h *Handler) LevelVar() *slog.LevelVar {
	if h == nil {
		return nil
	}
	return h.levelVar
}

// Formatter returns the formatter the handler feeds records through.
func (h *Handler) Formatter() *Formatter {
	if h == nil {
		return nil
	}
	return h.formatter
}

// Critical logs a structured message at [LevelCritical] without requiring
// a context value. slog.Logger has no method for levels above Error, so
// this helper fills the gap for the highest level documents carry.
func Critical(logger *slog.Logger, msg string, args ...any) {
	CriticalContext(context.Background(), logger, msg, args...)
}

// CriticalContext logs a structured message at [LevelCritical] while
// attaching contextual attributes from ctx.
func CriticalContext(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Log(ctx, LevelCritical.Level(), msg, args...)
}
