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
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

// Field names used for trace correlation inside a document's @fields.
// Downstream pipelines key dashboards and joins on these, so they are
// fixed identifiers rather than configuration.
const (
	// TraceIDKey holds the 32-char lowercase hex OpenTelemetry trace ID.
	TraceIDKey = "trace_id"
	// SpanIDKey holds the 16-char lowercase hex span ID.
	SpanIDKey = "span_id"
	// TraceSampledKey holds the boolean sampling decision.
	TraceSampledKey = "trace_sampled"
)

// ExtractTraceSpan extracts OpenTelemetry trace details from ctx.
//
// It returns:
//   - rawTraceID: 32-char lowercase hex trace ID.
//   - rawSpanID:  16-char lowercase hex span ID.
//   - sampled:    whether the span context is sampled.
//   - otelCtx:    the original span context (valid==true iff trace present).
//
// This function is intentionally light-weight: it does not create spans,
// does not parse headers, and does not mutate context. Upstream middleware
// should populate the OTel span context (e.g., via OTel propagators or an
// X-Cloud-Trace-Context injector) before calling this helper.
func ExtractTraceSpan(ctx context.Context) (rawTraceID, rawSpanID string, sampled bool, otelCtx trace.SpanContext) {
	otelCtx = trace.SpanContextFromContext(ctx)
	if !otelCtx.IsValid() {
		return "", "", false, otelCtx
	}
	return otelCtx.TraceID().String(), otelCtx.SpanID().String(), otelCtx.IsSampled(), otelCtx
}

// TraceAttributes extracts trace correlation attributes from ctx. The
// returned slice can be supplied to logger.With (or folded into a record's
// fields) to correlate documents with traces. It reports false when ctx
// carries no valid span context.
func TraceAttributes(ctx context.Context) ([]slog.Attr, bool) {
	if ctx == nil {
		return nil, false
	}

	rawTrace, rawSpan, sampled, sc := ExtractTraceSpan(ctx)
	if !sc.IsValid() {
		return nil, false
	}

	return []slog.Attr{
		slog.String(TraceIDKey, rawTrace),
		slog.String(SpanIDKey, rawSpan),
		slog.Bool(TraceSampledKey, sampled),
	}, true
}

// SpanIDHexToDecimal converts a 16-char hex span ID to its unsigned
// decimal representation as required by the legacy X-Cloud-Trace-Context
// header's SPAN_ID field.
//
// It returns ("", false) if the value cannot be parsed.
func SpanIDHexToDecimal(spanIDHex string) (string, bool) {
	// 64-bit span IDs as hex -> decimal
	ui, err := strconv.ParseUint(spanIDHex, 16, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(ui, 10), true
}

// BuildXCloudTraceContext builds the value for the legacy X-Cloud-Trace-Context
// header from raw hex IDs and a sampled flag. The format is:
//
//	TRACE_ID[/SPAN_ID][;o=TRACE_TRUE]
//
// where SPAN_ID is decimal and TRACE_TRUE is "1" when sampled, "0" otherwise.
//
// If spanIDHex is empty or invalid, the "/SPAN_ID" portion is omitted.
func BuildXCloudTraceContext(rawTraceID, spanIDHex string, sampled bool) string {
	val := rawTraceID
	if dec, ok := SpanIDHexToDecimal(spanIDHex); ok && dec != "" {
		val = fmt.Sprintf("%s/%s", val, dec)
	}
	if sampled {
		val = fmt.Sprintf("%s;o=1", val)
	} else {
		val = fmt.Sprintf("%s;o=0", val)
	}
	return val
}
