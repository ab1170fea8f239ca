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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/slogstash/slogstash"
)

const instrumentationName = "github.com/slogstash/slogstash/slogstashhttp"

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// httpGroupKey names the attribute group carried by completion records.
const httpGroupKey = "http"

const completionMessage = "finished HTTP request"

// Middleware returns an http.Handler middleware that installs a
// request-scoped logger, extracts trace context, and emits one completion
// record per request through the configured logger.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := applyOptions(opts)
	slogstash.EnsurePropagation()

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}

		loggingHandler := buildLoggingHandler(cfg, next)
		handlerChain := wrapWithOTel(cfg, loggingHandler)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if newCtx, _ := ensureSpanContext(ctx, r, cfg); newCtx != ctx {
				r = r.WithContext(newCtx)
			}
			handlerChain.ServeHTTP(w, r)
		})
	}
}

// buildLoggingHandler constructs the logging middleware around the next handler.
func buildLoggingHandler(cfg *config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		scope := newRequestScope(r, start, cfg)

		base := cfg.logger
		if base == nil {
			base = slogstash.LoggerFromContext(ctx)
		}
		requestLogger := loggerWithGroup(base, scope.identityAttrs())

		ctx = slogstash.ContextWithLogger(ctx, requestLogger)
		ctx = context.WithValue(ctx, requestScopeKey{}, scope)
		r = r.WithContext(ctx)

		wrapped, recorder := wrapResponseWriter(w, scope)
		defer func() {
			scope.finalize(recorder.Status(), recorder.BytesWritten(), time.Since(start))
			logCompletion(ctx, cfg, base, scope, nil)
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// logCompletion emits the per-request record unless the path is a
// registered health check that completed without an error status.
func logCompletion(ctx context.Context, cfg *config, logger *slog.Logger, scope *RequestScope, err error) {
	status := scope.Status()
	if err == nil && status < http.StatusBadRequest && cfg.suppressPath(scope.Target()) {
		return
	}

	attrs := make([]slog.Attr, 0, 2)
	attrs = append(attrs, slog.Attr{
		Key:   httpGroupKey,
		Value: slog.GroupValue(scope.completionAttrs(cfg)...),
	})
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}

	level := cfg.levelFunc(statusForLevel(status, err))
	logger.LogAttrs(ctx, level, completionMessage, attrs...)
}

// statusForLevel folds transport failures into the status 0 bucket so the
// level function sees them as errors even when a partial response arrived.
func statusForLevel(status int, err error) int {
	if err != nil {
		return 0
	}
	return status
}

// wrapWithOTel wraps handler with otelhttp middleware when enabled.
func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOptions(cfg)...)
}

// otelOptions builds OpenTelemetry handler options from configuration.
func otelOptions(cfg *config) []otelhttp.Option {
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagatorsSet && cfg.propagators != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
	}
	if cfg.spanNameFormatter != nil {
		otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(cfg.spanNameFormatter))
	}
	for _, filter := range cfg.filters {
		if filter != nil {
			otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
		}
	}
	return otelOpts
}

// RequestScope captures request metadata surfaced to handlers via context.
type RequestScope struct {
	start       time.Time
	method      string
	route       string
	target      string
	query       string
	scheme      string
	host        string
	clientIP    string
	userAgent   string
	referer     string
	requestSize int64

	status    atomic.Int64
	respBytes atomic.Int64
	latencyNS atomic.Int64
}

const unsetLatencySentinel = int64(-1)

// newRequestScope builds a RequestScope capturing request metadata and defaults.
func newRequestScope(r *http.Request, start time.Time, cfg *config) *RequestScope {
	scope := &RequestScope{start: start}
	if r != nil {
		scope.populateFromRequest(r, cfg)
	}
	scope.status.Store(http.StatusOK)
	scope.latencyNS.Store(unsetLatencySentinel)
	return scope
}

// populateFromRequest copies request metadata into the scope.
func (rs *RequestScope) populateFromRequest(r *http.Request, cfg *config) {
	rs.requestSize = r.ContentLength
	rs.method = r.Method
	if r.URL != nil {
		rs.target = r.URL.Path
		rs.query = r.URL.RawQuery
		rs.scheme = r.URL.Scheme
		if rs.scheme == "" {
			if r.TLS != nil {
				rs.scheme = schemeHTTPS
			} else {
				rs.scheme = schemeHTTP
			}
		}
	}
	rs.host = r.Host
	rs.userAgent = r.UserAgent()
	rs.referer = r.Referer()
	if cfg.includeClientIP {
		rs.clientIP = extractIP(r.RemoteAddr)
	}
	if cfg.routeGetter != nil {
		rs.route = strings.TrimSpace(cfg.routeGetter(r))
	}
}

// identityAttrs returns the attributes attached to the request-scoped
// logger: enough to tie application records to the request without
// repeating the full completion set.
func (rs *RequestScope) identityAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if rs.method != "" {
		attrs = append(attrs, slog.String("method", rs.method))
	}
	if rs.target != "" {
		attrs = append(attrs, slog.String("path", rs.target))
	}
	if rs.route != "" {
		attrs = append(attrs, slog.String("route", rs.route))
	}
	return attrs
}

// completionAttrs assembles the members of the http group on the
// completion record.
func (rs *RequestScope) completionAttrs(cfg *config) []slog.Attr {
	attrs := make([]slog.Attr, 0, 12)
	if rs.method != "" {
		attrs = append(attrs, slog.String("method", rs.method))
	}
	if rs.target != "" {
		attrs = append(attrs, slog.String("path", rs.target))
	}
	if cfg.includeQuery && rs.query != "" {
		attrs = append(attrs, slog.String("query", rs.query))
	}
	if rs.route != "" {
		attrs = append(attrs, slog.String("route", rs.route))
	}
	if rs.scheme != "" {
		attrs = append(attrs, slog.String("scheme", rs.scheme))
	}
	if rs.host != "" {
		attrs = append(attrs, slog.String("host", rs.host))
	}
	attrs = append(attrs,
		slog.Int("status", rs.Status()),
		slog.Int64("bytes", rs.ResponseSize()),
		slog.Duration("duration", rs.Latency()),
	)
	if rs.requestSize > 0 {
		attrs = append(attrs, slog.Int64("request_size", rs.requestSize))
	}
	if cfg.includeClientIP && rs.clientIP != "" {
		attrs = append(attrs, slog.String("remote_ip", rs.clientIP))
	}
	if cfg.includeUserAgent && rs.userAgent != "" {
		attrs = append(attrs, slog.String("user_agent", rs.userAgent))
	}
	if cfg.includeReferer && rs.referer != "" {
		attrs = append(attrs, slog.String("referer", rs.referer))
	}
	return attrs
}

// Method returns the HTTP method.
func (rs *RequestScope) Method() string { return rs.method }

// Target returns the request path component.
func (rs *RequestScope) Target() string { return rs.target }

// Query returns the raw query string without the '?' prefix.
func (rs *RequestScope) Query() string { return rs.query }

// Route returns the resolved route template, if provided.
func (rs *RequestScope) Route() string { return rs.route }

// Scheme returns the resolved request scheme.
func (rs *RequestScope) Scheme() string { return rs.scheme }

// Host returns the request host.
func (rs *RequestScope) Host() string { return rs.host }

// Status returns the response status code with a default of 200.
func (rs *RequestScope) Status() int {
	code := rs.status.Load()
	if code == 0 {
		return http.StatusOK
	}
	return int(code)
}

// Latency reports the elapsed time, live until the request finishes.
func (rs *RequestScope) Latency() time.Duration {
	ns := rs.latencyNS.Load()
	if ns != unsetLatencySentinel {
		return time.Duration(ns)
	}
	return time.Since(rs.start)
}

// ResponseSize returns the number of bytes written to the client.
func (rs *RequestScope) ResponseSize() int64 {
	return rs.respBytes.Load()
}

// RequestSize returns the content length reported by the client.
func (rs *RequestScope) RequestSize() int64 {
	return rs.requestSize
}

// ClientIP returns the parsed remote address.
func (rs *RequestScope) ClientIP() string { return rs.clientIP }

// UserAgent returns the request's User-Agent header.
func (rs *RequestScope) UserAgent() string { return rs.userAgent }

// Referer returns the request's Referer header.
func (rs *RequestScope) Referer() string { return rs.referer }

// Start returns the time the request began processing.
func (rs *RequestScope) Start() time.Time { return rs.start }

// setStatus records the response status, defaulting to 200 when unset.
func (rs *RequestScope) setStatus(code int) {
	if code <= 0 {
		code = http.StatusOK
	}
	rs.status.Store(int64(code))
}

// addResponseBytes accumulates response bytes if the delta is positive.
func (rs *RequestScope) addResponseBytes(delta int64) {
	if delta <= 0 {
		return
	}
	rs.respBytes.Add(delta)
}

// finalize stores the terminal status, byte count, and latency for the request.
func (rs *RequestScope) finalize(status int, bytes int64, d time.Duration) {
	rs.setStatus(status)
	if bytes >= 0 {
		rs.respBytes.Store(bytes)
	}
	if d < 0 {
		d = 0
	}
	rs.latencyNS.Store(d.Nanoseconds())
}

type requestScopeKey struct{}

// ScopeFromContext retrieves the RequestScope placed in the request context
// by the middleware or transport.
func ScopeFromContext(ctx context.Context) (*RequestScope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(requestScopeKey{}).(*RequestScope)
	return scope, ok && scope != nil
}

type responseRecorder struct {
	http.ResponseWriter
	scope        *RequestScope
	status       int
	wroteHeader  bool
	bytesWritten int64
}

// WriteHeader records the status code before delegating to the wrapped writer.
func (rr *responseRecorder) WriteHeader(status int) {
	if rr.wroteHeader {
		rr.ResponseWriter.WriteHeader(status)
		return
	}
	rr.status = status
	rr.scope.setStatus(status)
	rr.ResponseWriter.WriteHeader(status)
	rr.wroteHeader = true
}

// Write records bytes written and forwards the call to the underlying writer.
func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(p)
	if n > 0 {
		rr.bytesWritten += int64(n)
		rr.scope.addResponseBytes(int64(n))
	}
	if err != nil {
		return n, fmt.Errorf("write response body: %w", err)
	}
	return n, nil
}

// ReadFrom streams data from src while tracking bytes for logging.
func (rr *responseRecorder) ReadFrom(src io.Reader) (int64, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	if rf, ok := rr.ResponseWriter.(io.ReaderFrom); ok {
		n, err := rf.ReadFrom(src)
		if n > 0 {
			rr.bytesWritten += n
			rr.scope.addResponseBytes(n)
		}
		if err != nil {
			return n, fmt.Errorf("read from body: %w", err)
		}
		return n, nil
	}
	n, err := io.Copy(rr.ResponseWriter, src)
	if n > 0 {
		rr.bytesWritten += n
		rr.scope.addResponseBytes(n)
	}
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}
	return n, nil
}

// Status returns the HTTP status code that was written to the client.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// BytesWritten reports the cumulative number of bytes sent to the client.
func (rr *responseRecorder) BytesWritten() int64 {
	return rr.bytesWritten
}

// Unwrap exposes the underlying ResponseWriter for http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// Flush forwards the flush request to the underlying ResponseWriter when supported.
func (rr *responseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack delegates to the wrapped Hijacker when supported, otherwise returns http.ErrNotSupported.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rr.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := hijacker.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, rw, nil
	}
	return nil, nil, http.ErrNotSupported
}

// Push forwards HTTP/2 push requests when the underlying writer supports http.Pusher.
func (rr *responseRecorder) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := rr.ResponseWriter.(http.Pusher); ok {
		if err := pusher.Push(target, opts); err != nil {
			return fmt.Errorf("http/2 push: %w", err)
		}
		return nil
	}
	return http.ErrNotSupported
}

// wrapResponseWriter decorates the ResponseWriter to capture response metadata.
func wrapResponseWriter(w http.ResponseWriter, scope *RequestScope) (http.ResponseWriter, *responseRecorder) {
	rec := &responseRecorder{
		ResponseWriter: w,
		scope:          scope,
		status:         http.StatusOK,
	}
	scope.setStatus(http.StatusOK)
	return rec, rec
}

// ensureSpanContext extracts a remote span context from incoming headers
// when the context does not already carry one. The propagator installed by
// slogstash.EnsurePropagation handles both W3C traceparent and the legacy
// X-Cloud-Trace-Context header.
func ensureSpanContext(ctx context.Context, r *http.Request, cfg *config) (context.Context, trace.SpanContext) {
	if cfg != nil && !cfg.propagateTrace {
		return ctx, trace.SpanContextFromContext(ctx)
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return ctx, sc
	}
	if r == nil {
		return ctx, sc
	}

	var propagator propagation.TextMapPropagator
	if cfg != nil {
		propagator = cfg.propagators
	}
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	if propagator == nil {
		return ctx, sc
	}

	extracted := propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
	if extractedSC := trace.SpanContextFromContext(extracted); extractedSC.IsValid() {
		return extracted, extractedSC
	}
	return ctx, sc
}

// extractIP strips the port from a host:port string and returns the host component.
func extractIP(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// loggerWithGroup returns a logger carrying the supplied attributes under
// the http group.
func loggerWithGroup(base *slog.Logger, attrs []slog.Attr) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(slog.Attr{Key: httpGroupKey, Value: slog.GroupValue(attrs...)})
}
