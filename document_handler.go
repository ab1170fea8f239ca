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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// groupedAttr pairs a preset attribute with the group path that was open
// when it was attached.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// extractErrorFromValue unwraps an error from a slog.Value when possible.
func extractErrorFromValue(v slog.Value) error {
	v = v.Resolve()
	if v.Kind() != slog.KindAny {
		return nil
	}
	if anyVal := v.Any(); anyVal != nil {
		if err, ok := anyVal.(error); ok {
			return err
		}
	}
	return nil
}

// documentHandler is the core slog.Handler. It flattens each record's
// attributes into a field map, wraps the result in a Record, and streams
// the formatted document to the writer in a single write.
//
// WithAttrs and WithGroup derive new handlers that share the parent's
// mutex and writer, so sibling handlers never interleave output.
type documentHandler struct {
	mu *sync.Mutex

	cfg            *handlerConfig
	formatter      *Formatter
	leveler        slog.Leveler
	writer         io.Writer
	internalLogger *slog.Logger

	groupedAttrs []groupedAttr
	groups       []string
}

// newDocumentHandler constructs the core handler from the merged
// configuration, seeding preset attributes and the initial group.
func newDocumentHandler(cfg *handlerConfig, formatter *Formatter, leveler slog.Leveler, internalLogger *slog.Logger) *documentHandler {
	if leveler == nil {
		leveler = slog.LevelInfo
	}
	h := &documentHandler{
		mu:             &sync.Mutex{},
		cfg:            cfg,
		formatter:      formatter,
		leveler:        leveler,
		writer:         cfg.Writer,
		internalLogger: internalLogger,
		groupedAttrs:   make([]groupedAttr, 0, len(cfg.InitialAttrs)),
	}
	for _, a := range cfg.InitialAttrs {
		if a.Key == "" && a.Value.Any() == nil {
			continue
		}
		h.groupedAttrs = append(h.groupedAttrs, groupedAttr{attr: a})
	}
	if cfg.InitialGroup != "" {
		h.groups = []string{cfg.InitialGroup}
	}
	return h
}

// Enabled reports whether level is enabled for emission.
func (h *documentHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.leveler != nil {
		min = h.leveler.Level()
	}
	return level >= min
}

// Handle converts r into a logstash document and writes it,
// newline-terminated, to the configured writer.
func (h *documentHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}
	if h.writer == nil {
		return errors.New("slogstash: no writer configured")
	}

	fields, firstErr := h.buildFields(r)

	if h.cfg.TraceCorrelation {
		if rawTraceID, rawSpanID, sampled, spanCtx := ExtractTraceSpan(ctx); spanCtx.IsValid() {
			fields[TraceIDKey] = rawTraceID
			fields[SpanIDKey] = rawSpanID
			fields[TraceSampledKey] = sampled
		}
	}

	if h.cfg.AddSource {
		if loc := resolveSourceLocation(r); loc != nil {
			fields["source_location"] = loc
		}
	}

	var exc *ExceptionInfo
	if firstErr != nil {
		exc = CaptureException(firstErr)
		if exc.Stack == "" && h.stackWanted(r.Level) {
			exc.Stack, _ = CaptureStack(nil)
		}
	} else if h.stackWanted(r.Level) {
		if stack, _ := CaptureStack(nil); stack != "" {
			fields["stack_trace"] = stack
		}
	}

	rec := Record{
		Message:   TemplateMessage{Format: r.Message},
		LevelName: Level(r.Level).String(),
		Time:      r.Time,
		Fields:    fields,
		Exception: exc,
	}

	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		jsonBufferPool.Put(buf)
	}()

	if err := h.formatter.formatTo(buf, rec); err != nil {
		h.internalLogger.Error("failed to encode log document", slog.Any("error", err))
		return err
	}

	h.mu.Lock()
	_, err := buf.WriteTo(h.writer)
	h.mu.Unlock()
	if err != nil {
		h.internalLogger.Error("failed to write log document", slog.Any("error", err))
		return err
	}
	return nil
}

// WithAttrs returns a new handler that includes the provided attributes
// on every emitted record.
func (h *documentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	h.mu.Lock()
	baseGrouped := append([]groupedAttr(nil), h.groupedAttrs...)
	baseGroups := append([]string(nil), h.groups...)
	h.mu.Unlock()

	grouped := baseGrouped
	for _, attr := range attrs {
		grouped = append(grouped, groupedAttr{
			groups: append([]string(nil), baseGroups...),
			attr:   attr,
		})
	}

	return &documentHandler{
		mu:             h.mu,
		cfg:            h.cfg,
		formatter:      h.formatter,
		leveler:        h.leveler,
		writer:         h.writer,
		internalLogger: h.internalLogger,
		groupedAttrs:   grouped,
		groups:         baseGroups,
	}
}

// WithGroup nests subsequent attributes under name.
func (h *documentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	h.mu.Lock()
	baseGrouped := append([]groupedAttr(nil), h.groupedAttrs...)
	baseGroups := append([]string(nil), h.groups...)
	h.mu.Unlock()

	baseGroups = append(baseGroups, name)

	return &documentHandler{
		mu:             h.mu,
		cfg:            h.cfg,
		formatter:      h.formatter,
		leveler:        h.leveler,
		writer:         h.writer,
		internalLogger: h.internalLogger,
		groupedAttrs:   baseGrouped,
		groups:         baseGroups,
	}
}

// stackWanted reports whether automatic stack capture applies at level.
func (h *documentHandler) stackWanted(level slog.Level) bool {
	return h.cfg.StackTraceEnabled && level >= h.cfg.StackTraceLevel
}

// buildFields flattens preset and record attributes into a field map,
// nesting open groups as objects. It also reports the first error value
// encountered among the attributes.
func (h *documentHandler) buildFields(r slog.Record) (map[string]any, error) {
	h.mu.Lock()
	baseAttrs := h.groupedAttrs
	baseGroups := h.groups
	h.mu.Unlock()

	fields := make(map[string]any, len(baseAttrs)+r.NumAttrs()+4)

	var firstErr error

	ensureGroupMap := func(parent map[string]any, key string) map[string]any {
		if key == "" {
			return parent
		}
		if existing, ok := parent[key]; ok {
			if m, ok := existing.(map[string]any); ok {
				return m
			}
		}
		child := make(map[string]any, 4)
		parent[key] = child
		return child
	}

	var walkAttr func(curr map[string]any, attr slog.Attr)
	walkAttr = func(curr map[string]any, attr slog.Attr) {
		attr.Value = attr.Value.Resolve()

		if attr.Value.Kind() == slog.KindGroup {
			children := attr.Value.Group()
			next := curr
			if attr.Key != "" {
				next = ensureGroupMap(curr, attr.Key)
			}
			for i := range children {
				walkAttr(next, children[i])
			}
			return
		}

		if attr.Key == "" {
			return
		}

		if firstErr == nil {
			if errVal := extractErrorFromValue(attr.Value); errVal != nil {
				firstErr = errVal
			}
		}

		val := resolveSlogValue(attr.Value)
		if val == nil {
			return
		}
		curr[attr.Key] = val
	}

	for i := range baseAttrs {
		ga := baseAttrs[i]
		curr := fields
		for _, g := range ga.groups {
			curr = ensureGroupMap(curr, g)
		}
		walkAttr(curr, ga.attr)
	}

	base := fields
	for _, g := range baseGroups {
		base = ensureGroupMap(base, g)
	}
	r.Attrs(func(attr slog.Attr) bool {
		walkAttr(base, attr)
		return true
	})

	pruneEmptyMaps(fields)
	return fields, firstErr
}

// resolveSourceLocation determines the best-effort source location for r.
func resolveSourceLocation(r slog.Record) map[string]any {
	if src := r.Source(); src != nil {
		if src.Function != "" || src.File != "" {
			return map[string]any{
				"file":     src.File,
				"line":     src.Line,
				"function": src.Function,
			}
		}
	}

	if r.PC == 0 {
		return nil
	}

	var pcs [1]uintptr
	pcs[0] = r.PC
	frames := runtime.CallersFrames(pcs[:])
	frame, _ := frames.Next()
	if frame.Function == "" {
		return nil
	}
	return map[string]any{
		"file":     frame.File,
		"line":     frame.Line,
		"function": frame.Function,
	}
}

// resolveSlogValue converts a slog.Value into a Go type suitable for the
// field map. The normalization pass inside the formatter handles anything
// this leaves as-is.
func resolveSlogValue(v slog.Value) any {
	rv := v.Resolve()

	if rv.Kind() == slog.KindGroup {
		return resolveGroupAttrs(rv.Group())
	}

	switch rv.Kind() {
	case slog.KindBool:
		return rv.Bool()
	case slog.KindDuration:
		return rv.Duration().String()
	case slog.KindFloat64:
		return rv.Float64()
	case slog.KindInt64:
		return rv.Int64()
	case slog.KindString:
		return rv.String()
	case slog.KindTime:
		return rv.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindUint64:
		return rv.Uint64()
	case slog.KindAny:
		return resolveAnyValue(rv.Any())
	default:
		return nil
	}
}

// resolveGroupAttrs converts slog group attributes into a map, omitting
// blanks.
func resolveGroupAttrs(groupAttrs []slog.Attr) any {
	if len(groupAttrs) == 0 {
		return nil
	}
	groupMap := make(map[string]any, len(groupAttrs))
	for _, ga := range groupAttrs {
		if ga.Key == "" {
			continue
		}
		if resolved := resolveSlogValue(ga.Value); resolved != nil {
			groupMap[ga.Key] = resolved
		}
	}
	if len(groupMap) == 0 {
		return nil
	}
	return groupMap
}

// resolveAnyValue unwraps common AnyValue types to JSON-friendly forms.
func resolveAnyValue(val any) any {
	switch vt := val.(type) {
	case error:
		return vt.Error()
	case nil:
		return nil
	default:
		return val
	}
}

// pruneEmptyMaps recursively removes map entries that are empty, ensuring
// that WithGroup-derived handlers do not emit empty objects when no
// attributes are present for a group.
func pruneEmptyMaps(m map[string]any) bool {
	for k, v := range m {
		if typed, ok := v.(map[string]any); ok {
			if pruneEmptyMaps(typed) {
				delete(m, k)
			}
		}
	}
	return len(m) == 0
}
