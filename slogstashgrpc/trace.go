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

package slogstashgrpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/slogstash/slogstash"
)

// XCloudTraceContextHeader is the legacy metadata key some load
// balancers and older clients use for trace propagation.
const XCloudTraceContextHeader = "X-Cloud-Trace-Context"

// metadataCarrier adapts gRPC metadata to the OpenTelemetry
// TextMapCarrier interface. metadata.MD normalizes keys to lower case
// on both reads and writes, matching propagator expectations.
type metadataCarrier struct {
	md metadata.MD
}

// Get returns the first value for key.
func (c metadataCarrier) Get(key string) string {
	values := c.md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Set replaces the values for key.
func (c metadataCarrier) Set(key, value string) {
	c.md.Set(key, value)
}

// Keys lists the metadata keys.
func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c.md))
	for k := range c.md {
		keys = append(keys, k)
	}
	return keys
}

// ensureServerSpanContext extracts remote trace context from incoming
// metadata when the context does not already carry a valid span. The
// returned context feeds the document handler's trace correlation.
func ensureServerSpanContext(ctx context.Context, md metadata.MD, cfg *config) context.Context {
	if !cfg.propagateTrace {
		return ctx
	}
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	if len(md) == 0 {
		return ctx
	}
	propagator := cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	extracted := propagator.Extract(ctx, metadataCarrier{md: md})
	if !trace.SpanContextFromContext(extracted).IsValid() {
		return ctx
	}
	return extracted
}

// injectClientTrace writes the current trace context into outgoing
// metadata, optionally synthesizing the legacy X-Cloud-Trace-Context
// entry for peers that only understand that format.
func injectClientTrace(ctx context.Context, md metadata.MD, cfg *config) {
	if !cfg.propagateTrace {
		return
	}
	propagator := cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, metadataCarrier{md: md})
	if !cfg.injectLegacyXCTC {
		return
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	if len(md.Get(XCloudTraceContextHeader)) > 0 {
		return
	}
	value := slogstash.BuildXCloudTraceContext(sc.TraceID().String(), sc.SpanID().String(), sc.IsSampled())
	md.Set(XCloudTraceContextHeader, value)
}
