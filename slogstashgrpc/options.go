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
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
)

// CodeToLevel maps a final gRPC status code to the slog level of the
// completion record.
type CodeToLevel func(code codes.Code) slog.Level

// Option configures gRPC interceptors and helper functions.
type Option func(*config)

type config struct {
	logger           *slog.Logger
	levelFunc        CodeToLevel
	enableOTel       bool
	tracerProvider   trace.TracerProvider
	propagators      propagation.TextMapPropagator
	propagatorsSet   bool
	propagateTrace   bool
	injectLegacyXCTC bool
	includePeer      bool
	includeSizes     bool
	logPayloads      bool
	maxPayloadSize   int
	panicRecovery    bool
	skipHealth       bool
	skipMethods      map[string]struct{}
}

// defaultConfig returns the baseline configuration for the interceptors.
func defaultConfig() *config {
	return &config{
		levelFunc:      defaultCodeToLevel,
		enableOTel:     true,
		propagateTrace: true,
		includePeer:    true,
		includeSizes:   true,
		panicRecovery:  true,
		skipHealth:     true,
	}
}

// applyOptions applies the provided Option list, starting from defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// healthServicePrefix matches methods of the standard gRPC health service.
const healthServicePrefix = "/grpc.health.v1.Health/"

// suppressMethod reports whether completion records for fullMethod are
// suppressed while the RPC finishes OK.
func (cfg *config) suppressMethod(fullMethod string) bool {
	if cfg.skipHealth && strings.HasPrefix(fullMethod, healthServicePrefix) {
		return true
	}
	if len(cfg.skipMethods) == 0 {
		return false
	}
	_, ok := cfg.skipMethods[fullMethod]
	return ok
}

// defaultCodeToLevel maps final status codes to completion severities.
// Cancellations count as expected client behavior; retryable or
// client-caused failures warn; definite server failures error.
func defaultCodeToLevel(code codes.Code) slog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return slog.LevelInfo
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.Unauthenticated, codes.PermissionDenied:
		return slog.LevelWarn
	case codes.DeadlineExceeded, codes.ResourceExhausted, codes.FailedPrecondition,
		codes.Aborted, codes.OutOfRange, codes.Unavailable:
		return slog.LevelWarn
	case codes.Unknown, codes.Unimplemented, codes.Internal, codes.DataLoss:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// WithLogger sets the base logger completion records and derived
// request loggers build on. When omitted, each RPC resolves its logger
// from the context via slogstash.LoggerFromContext.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithLevels replaces the status code to level mapping. Passing nil
// restores the default mapping.
func WithLevels(f CodeToLevel) Option {
	return func(cfg *config) {
		if f != nil {
			cfg.levelFunc = f
			return
		}
		cfg.levelFunc = defaultCodeToLevel
	}
}

// WithOTel enables or disables automatic otelgrpc StatsHandlers in
// ServerOptions and DialOptions. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithTracerProvider configures the tracer provider used when composing
// otelgrpc StatsHandlers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators sets the text map propagator used for extracting
// metadata (server) or injecting metadata (client). When omitted, the
// global propagator is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracePropagation toggles extraction and injection of trace
// context on servers and clients. Enabled by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithLegacyXCloudInjection toggles synthesis of the legacy
// X-Cloud-Trace-Context metadata on client RPCs.
func WithLegacyXCloudInjection(enabled bool) Option {
	return func(cfg *config) {
		cfg.injectLegacyXCTC = enabled
	}
}

// WithPeerInfo toggles the peer address member of the rpc group.
// Enabled by default.
func WithPeerInfo(enabled bool) Option {
	return func(cfg *config) {
		cfg.includePeer = enabled
	}
}

// WithPayloadSizes toggles request and response size members of the rpc
// group. Enabled by default.
func WithPayloadSizes(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeSizes = enabled
	}
}

// WithPayloadLogging enables protojson payload records at debug level.
// Disabled by default.
func WithPayloadLogging(enabled bool) Option {
	return func(cfg *config) {
		cfg.logPayloads = enabled
	}
}

// WithMaxPayloadSize caps logged payloads at sizeBytes; larger payloads
// are truncated and flagged. Zero or negative means no limit.
func WithMaxPayloadSize(sizeBytes int) Option {
	return func(cfg *config) {
		if sizeBytes < 0 {
			sizeBytes = 0
		}
		cfg.maxPayloadSize = sizeBytes
	}
}

// WithPanicRecovery toggles recovery of handler panics on the server
// interceptors. Enabled by default; when disabled, panics propagate to
// the gRPC runtime unlogged.
func WithPanicRecovery(enabled bool) Option {
	return func(cfg *config) {
		cfg.panicRecovery = enabled
	}
}

// WithSkipHealthChecks toggles the built-in suppression of
// grpc.health.v1.Health RPCs that finish OK. Enabled by default.
func WithSkipHealthChecks(enabled bool) Option {
	return func(cfg *config) {
		cfg.skipHealth = enabled
	}
}

// WithSkipMethods registers full method names (for example
// "/pkg.Service/Watch") whose completion records are suppressed while
// the RPC finishes OK. Non-OK completions are always logged.
func WithSkipMethods(methods ...string) Option {
	return func(cfg *config) {
		for _, method := range methods {
			method = strings.TrimSpace(method)
			if method == "" {
				continue
			}
			if cfg.skipMethods == nil {
				cfg.skipMethods = make(map[string]struct{})
			}
			cfg.skipMethods[method] = struct{}{}
		}
	}
}
