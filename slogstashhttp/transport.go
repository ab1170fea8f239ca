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

package slogstashhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/slogstash/slogstash"
)

// XCloudTraceContextHeader is the Google Cloud legacy trace propagation header.
const XCloudTraceContextHeader = "X-Cloud-Trace-Context"

const clientCompletionMessage = "finished outbound HTTP request"

// Transport returns an http.RoundTripper that injects trace context, derives
// a logger per outbound request, and emits one completion record per round
// trip. A nil base falls back to http.DefaultTransport.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := applyOptions(opts)
	slogstash.EnsurePropagation()

	if base == nil {
		base = http.DefaultTransport
	}

	return roundTripper{base: base, cfg: cfg}
}

type roundTripper struct {
	base http.RoundTripper
	cfg  *config
}

// RoundTrip instruments the outbound request, forwards it to the base
// transport, and logs the outcome.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("round trip nil request: %w", err)
		}
		return resp, nil
	}

	cfg := t.cfg
	ctx := req.Context()

	scope := newClientScope(req, time.Now(), cfg)

	base := cfg.logger
	if base == nil {
		base = slogstash.LoggerFromContext(ctx)
	}
	requestLogger := loggerWithGroup(base, scope.identityAttrs())

	ctx = slogstash.ContextWithLogger(ctx, requestLogger)
	ctx = context.WithValue(ctx, requestScopeKey{}, scope)

	req = req.Clone(ctx)

	t.injectTrace(ctx, req)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(scope.Start())

	gotResponse := resp != nil
	if gotResponse {
		scope.finalize(resp.StatusCode, resp.ContentLength, elapsed)
	} else {
		if err == nil {
			err = errors.New("received no response and no error")
		}
		scope.finalize(0, scope.ResponseSize(), elapsed)
	}

	logClientCompletion(ctx, cfg, base, scope, gotResponse, err)

	if err != nil {
		return resp, fmt.Errorf("round trip request: %w", err)
	}
	return resp, nil
}

// injectTrace injects OpenTelemetry and optional legacy trace headers onto
// the cloned request.
func (t roundTripper) injectTrace(ctx context.Context, req *http.Request) {
	if t.cfg != nil && !t.cfg.propagateTrace {
		return
	}

	propagator := t.cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	if propagator != nil {
		propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	if !t.cfg.injectLegacyXCTC {
		return
	}

	if req.Header.Get(XCloudTraceContextHeader) != "" {
		return
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}

	req.Header.Set(
		XCloudTraceContextHeader,
		slogstash.BuildXCloudTraceContext(sc.TraceID().String(), sc.SpanID().String(), sc.IsSampled()),
	)
}

// logClientCompletion emits the per-round-trip record unless the path is a
// registered health check that completed without an error.
func logClientCompletion(ctx context.Context, cfg *config, logger *slog.Logger, scope *RequestScope, gotResponse bool, err error) {
	status := scope.Status()
	if err == nil && status < http.StatusBadRequest && cfg.suppressPath(scope.Target()) {
		return
	}

	attrs := make([]slog.Attr, 0, 2)
	attrs = append(attrs, slog.Attr{
		Key:   httpGroupKey,
		Value: slog.GroupValue(clientCompletionAttrs(scope, cfg, gotResponse)...),
	})
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}

	level := cfg.levelFunc(statusForLevel(status, err))
	logger.LogAttrs(ctx, level, clientCompletionMessage, attrs...)
}

// clientCompletionAttrs assembles the members of the http group on the
// outbound completion record. Status and byte counts are omitted when the
// round trip produced no response.
func clientCompletionAttrs(scope *RequestScope, cfg *config, gotResponse bool) []slog.Attr {
	attrs := make([]slog.Attr, 0, 10)
	if scope.Method() != "" {
		attrs = append(attrs, slog.String("method", scope.Method()))
	}
	if scope.Target() != "" {
		attrs = append(attrs, slog.String("path", scope.Target()))
	}
	if cfg.includeQuery && scope.Query() != "" {
		attrs = append(attrs, slog.String("query", scope.Query()))
	}
	if scope.Scheme() != "" {
		attrs = append(attrs, slog.String("scheme", scope.Scheme()))
	}
	if scope.Host() != "" {
		attrs = append(attrs, slog.String("host", scope.Host()))
	}
	if gotResponse {
		attrs = append(attrs,
			slog.Int("status", scope.Status()),
			slog.Int64("bytes", scope.ResponseSize()),
		)
	}
	attrs = append(attrs, slog.Duration("duration", scope.Latency()))
	if scope.RequestSize() > 0 {
		attrs = append(attrs, slog.Int64("request_size", scope.RequestSize()))
	}
	if cfg.includeClientIP && scope.ClientIP() != "" {
		attrs = append(attrs, slog.String("remote_ip", scope.ClientIP()))
	}
	if cfg.includeUserAgent && scope.UserAgent() != "" {
		attrs = append(attrs, slog.String("user_agent", scope.UserAgent()))
	}
	return attrs
}

// newClientScope builds a RequestScope describing the outbound HTTP request.
func newClientScope(req *http.Request, start time.Time, cfg *config) *RequestScope {
	scope := &RequestScope{
		start:       start,
		method:      req.Method,
		requestSize: req.ContentLength,
	}

	if req.URL != nil {
		scope.target = req.URL.Path
		scope.query = req.URL.RawQuery
		scope.scheme = req.URL.Scheme
		scope.host = req.URL.Host
	}
	scope.userAgent = req.Header.Get("User-Agent")
	if cfg.includeClientIP {
		scope.clientIP = outboundHost(req)
	}

	scope.status.Store(http.StatusOK)
	scope.latencyNS.Store(unsetLatencySentinel)
	return scope
}

// outboundHost extracts the host name from the outbound request for logging.
func outboundHost(req *http.Request) string {
	if req == nil {
		return ""
	}
	if req.URL != nil && req.URL.Host != "" {
		if host, _, err := net.SplitHostPort(req.URL.Host); err == nil {
			return host
		}
		return req.URL.Host
	}
	if req.Host != "" {
		if host, _, err := net.SplitHostPort(req.Host); err == nil {
			return host
		}
		return req.Host
	}
	return ""
}
