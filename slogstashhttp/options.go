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
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusToLevel maps an HTTP response status code to the slog.Level used
// for the completion record. A status of 0 means the request failed before
// a response was received.
type StatusToLevel func(status int) slog.Level

// Option configures HTTP middleware or transport behaviour.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	levelFunc         StatusToLevel
	enableOTel        bool
	tracerProvider    trace.TracerProvider
	propagators       propagation.TextMapPropagator
	propagatorsSet    bool
	propagateTrace    bool
	spanNameFormatter func(string, *http.Request) string
	filters           []otelhttp.Filter
	routeGetter       func(*http.Request) string
	includeQuery      bool
	includeClientIP   bool
	includeUserAgent  bool
	includeReferer    bool
	healthPaths       map[string]struct{}
	injectLegacyXCTC  bool
}

// defaultConfig returns the baseline configuration for slogstash HTTP helpers.
func defaultConfig() *config {
	return &config{
		levelFunc:        defaultStatusToLevel,
		enableOTel:       true,
		propagateTrace:   true,
		includeClientIP:  true,
		includeUserAgent: true,
		includeReferer:   true,
	}
}

// applyOptions applies the provided options on top of defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// defaultStatusToLevel maps server errors to Error, client errors to Warn,
// and everything else to Info. Status 0 indicates a transport failure and
// is treated as an error.
func defaultStatusToLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError || status == 0:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// suppressPath reports whether completion records for the given request
// path are suppressed.
func (cfg *config) suppressPath(path string) bool {
	if len(cfg.healthPaths) == 0 {
		return false
	}
	_, ok := cfg.healthPaths[path]
	return ok
}

// WithLogger sets the logger that receives completion records and from
// which request-scoped loggers are derived. When nil, the logger already
// carried by the request context (or slog.Default) is used.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithLevels sets the function mapping response status codes to log levels
// for completion records. Passing nil restores the default mapping.
func WithLevels(f StatusToLevel) Option {
	return func(cfg *config) {
		if f != nil {
			cfg.levelFunc = f
			return
		}
		cfg.levelFunc = defaultStatusToLevel
	}
}

// WithOTel enables or disables automatic otelhttp instrumentation. It is
// enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithTracerProvider installs the OpenTelemetry tracer provider used when
// composing the otelhttp handler.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators supplies a TextMapPropagator used for extracting (server)
// or injecting (client) trace context. When omitted,
// otel.GetTextMapPropagator() is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracePropagation toggles extraction and injection of trace context on
// HTTP middleware and transports. Enabled by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithSpanNameFormatter customizes otelhttp span naming.
func WithSpanNameFormatter(formatter func(string, *http.Request) string) Option {
	return func(cfg *config) {
		cfg.spanNameFormatter = formatter
	}
}

// WithFilter appends an otelhttp filter applied to inbound requests prior
// to span creation.
func WithFilter(filter otelhttp.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithRouteGetter overrides how the middleware resolves the route template
// for a request (e.g., mux-specific variables).
func WithRouteGetter(fn func(*http.Request) string) Option {
	return func(cfg *config) {
		cfg.routeGetter = fn
	}
}

// WithIncludeQuery toggles inclusion of the raw query string on completion
// records. By default queries are omitted to avoid logging sensitive data.
func WithIncludeQuery(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeQuery = enabled
	}
}

// WithClientIP toggles inclusion of the remote IP on completion records.
// The default is true.
func WithClientIP(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeClientIP = enabled
	}
}

// WithUserAgent toggles inclusion of the User-Agent header on completion
// records. The default is true.
func WithUserAgent(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeUserAgent = enabled
	}
}

// WithReferer toggles inclusion of the Referer header on completion
// records. The default is true.
func WithReferer(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeReferer = enabled
	}
}

// WithHealthPath registers request paths whose completion records are
// suppressed while the response status stays below 400. Repeated use adds
// to the set. Matching is exact.
func WithHealthPath(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if cfg.healthPaths == nil {
				cfg.healthPaths = make(map[string]struct{})
			}
			cfg.healthPaths[p] = struct{}{}
		}
	}
}

// WithLegacyXCloudInjection toggles synthesis of the legacy
// X-Cloud-Trace-Context header on outbound requests managed by Transport.
// W3C traceparent headers remain enabled regardless of this setting.
func WithLegacyXCloudInjection(enabled bool) Option {
	return func(cfg *config) {
		cfg.injectLegacyXCTC = enabled
	}
}
