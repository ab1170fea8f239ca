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
	"log/slog"
	"net"
	"runtime"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/slogstash/slogstash"
)

const (
	// rpcGroupKey is the @fields member holding RPC attributes.
	rpcGroupKey = "rpc"

	serverCompletionMessage = "finished gRPC call"
	clientCompletionMessage = "finished outbound gRPC call"
	panicMessage            = "recovered panic during gRPC call"

	// panicStackBufSize bounds the stack trace captured on panic.
	panicStackBufSize = 8192
)

// requestInfoKey is the context key for the per-RPC RequestInfo.
type requestInfoKey struct{}

// InfoFromContext returns the RequestInfo of the RPC in flight, if the
// context passed through one of this package's interceptors.
func InfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok
}

// UnaryServerInterceptor returns an interceptor that stores a
// request-scoped logger and RequestInfo on the handler context, guards
// the handler against panics, and emits one completion record per RPC.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)
	slogstash.EnsurePropagation()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = ensureServerSpanContext(ctx, md, cfg)

		requestInfo := newRequestInfo(info.FullMethod, "unary", false, start)
		if cfg.includePeer {
			requestInfo.setPeer(peerAddress(ctx))
		}
		base := cfg.logger
		if base == nil {
			base = slogstash.LoggerFromContext(ctx)
		}
		ctx = attachLogger(ctx, base, requestInfo)
		logger := slogstash.LoggerFromContext(ctx)
		suppress := cfg.suppressMethod(info.FullMethod)

		if cfg.includeSizes {
			requestInfo.recordRequest(req)
		}
		if cfg.logPayloads {
			logPayload(ctx, logger, cfg, directionReceived, req)
		}

		if cfg.panicRecovery {
			defer func() {
				isPanic, panicErr := handlePanic(ctx, logger, recover())
				if !isPanic {
					return
				}
				resp = nil
				err = panicErr
				requestInfo.finalize(status.Code(err), time.Since(start))
				logCompletion(ctx, cfg, base, requestInfo, err, true, suppress)
			}()
		}

		resp, err = handler(ctx, req)
		if err == nil && cfg.includeSizes {
			requestInfo.recordResponse(resp)
		}
		if err == nil && cfg.logPayloads {
			logPayload(ctx, logger, cfg, directionSent, resp)
		}
		requestInfo.finalize(status.Code(err), time.Since(start))
		logCompletion(ctx, cfg, base, requestInfo, err, false, suppress)
		return resp, err
	}
}

// StreamServerInterceptor returns the streaming counterpart of
// UnaryServerInterceptor. Message sizes and payloads are observed through
// the wrapped stream as the handler sends and receives.
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)
	slogstash.EnsurePropagation()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		ctx := ss.Context()
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = ensureServerSpanContext(ctx, md, cfg)

		requestInfo := newRequestInfo(info.FullMethod, streamKind(info), false, start)
		if cfg.includePeer {
			requestInfo.setPeer(peerAddress(ctx))
		}
		base := cfg.logger
		if base == nil {
			base = slogstash.LoggerFromContext(ctx)
		}
		ctx = attachLogger(ctx, base, requestInfo)
		logger := slogstash.LoggerFromContext(ctx)
		suppress := cfg.suppressMethod(info.FullMethod)

		wrapped := &serverStream{
			ServerStream: ss,
			ctx:          ctx,
			cfg:          cfg,
			logger:       logger,
			info:         requestInfo,
		}

		if cfg.panicRecovery {
			defer func() {
				isPanic, panicErr := handlePanic(ctx, logger, recover())
				if !isPanic {
					return
				}
				err = panicErr
				requestInfo.finalize(status.Code(err), time.Since(start))
				logCompletion(ctx, cfg, base, requestInfo, err, true, suppress)
			}()
		}

		err = handler(srv, wrapped)
		requestInfo.finalize(status.Code(err), time.Since(start))
		logCompletion(ctx, cfg, base, requestInfo, err, false, suppress)
		return err
	}
}

// serverStream overrides the handler-visible context and observes
// message traffic for size accounting and payload logging.
type serverStream struct {
	grpc.ServerStream
	ctx    context.Context
	cfg    *config
	logger *slog.Logger
	info   *RequestInfo
}

// Context returns the enriched per-RPC context.
func (s *serverStream) Context() context.Context { return s.ctx }

// RecvMsg delegates to the underlying stream and accounts for the
// received message on success.
func (s *serverStream) RecvMsg(m any) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	if s.cfg.includeSizes {
		s.info.recordRequest(m)
	}
	if s.cfg.logPayloads {
		logPayload(s.ctx, s.logger, s.cfg, directionReceived, m)
	}
	return nil
}

// SendMsg accounts for the outgoing message, then delegates.
func (s *serverStream) SendMsg(m any) error {
	if s.cfg.includeSizes {
		s.info.recordResponse(m)
	}
	if s.cfg.logPayloads {
		logPayload(s.ctx, s.logger, s.cfg, directionSent, m)
	}
	return s.ServerStream.SendMsg(m)
}

// UnaryClientInterceptor returns an interceptor that injects trace
// metadata into outgoing RPCs and emits one completion record per call.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := applyOptions(opts)
	slogstash.EnsurePropagation()
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		start := time.Now()
		requestInfo := newRequestInfo(method, "unary", true, start)
		if cfg.includePeer && cc != nil {
			requestInfo.setPeer(cc.Target())
		}
		base := cfg.logger
		if base == nil {
			base = slogstash.LoggerFromContext(ctx)
		}
		ctx = attachLogger(ctx, base, requestInfo)
		logger := slogstash.LoggerFromContext(ctx)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.New(nil)
		}
		injectClientTrace(ctx, md, cfg)
		ctx = metadata.NewOutgoingContext(ctx, md)

		if cfg.includeSizes {
			requestInfo.recordRequest(req)
		}
		if cfg.logPayloads {
			logPayload(ctx, logger, cfg, directionSent, req)
		}

		err := invoker(ctx, method, req, reply, cc, callOpts...)
		if err == nil {
			if cfg.includeSizes {
				requestInfo.recordResponse(reply)
			}
			if cfg.logPayloads {
				logPayload(ctx, logger, cfg, directionReceived, reply)
			}
		}
		requestInfo.finalize(status.Code(err), time.Since(start))
		logCompletion(ctx, cfg, base, requestInfo, err, false, cfg.suppressMethod(method))
		return err
	}
}

// ServerOptions bundles this package's server interceptors, plus an
// otelgrpc stats handler unless disabled, into grpc.NewServer options.
func ServerOptions(opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	serverOpts := make([]grpc.ServerOption, 0, 3)
	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}
	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(opts...)),
	)
	return serverOpts
}

// DialOptions bundles the client interceptor, plus an otelgrpc stats
// handler unless disabled, into grpc.NewClient options.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	dialOpts := make([]grpc.DialOption, 0, 2)
	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}
	dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)))
	return dialOpts
}

// statsHandlerOptions translates config into otelgrpc options.
func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var handlerOpts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		handlerOpts = append(handlerOpts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagatorsSet && cfg.propagators != nil {
		handlerOpts = append(handlerOpts, otelgrpc.WithPropagators(cfg.propagators))
	}
	return handlerOpts
}

// attachLogger stores the request-scoped logger and RequestInfo on ctx.
func attachLogger(ctx context.Context, base *slog.Logger, info *RequestInfo) context.Context {
	requestLogger := loggerWithGroup(base, info.identityAttrs())
	ctx = slogstash.ContextWithLogger(ctx, requestLogger)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// logCompletion emits the per-RPC completion record on logger.
func logCompletion(ctx context.Context, cfg *config, logger *slog.Logger, info *RequestInfo, err error, isPanic, suppressed bool) {
	if suppressed && info.Code() == codes.OK && !isPanic {
		return
	}
	level := cfg.levelFunc(info.Code())
	if isPanic {
		level = slogstash.LevelCritical.Level()
	}
	attrs := make([]slog.Attr, 0, 2)
	attrs = append(attrs, slog.Attr{Key: rpcGroupKey, Value: slog.GroupValue(info.completionAttrs(cfg)...)})
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	msg := serverCompletionMessage
	if info.IsClient() {
		msg = clientCompletionMessage
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}

// handlePanic logs a recovered panic with its stack trace and converts
// it into a codes.Internal error. It reports false when recovered is
// nil, meaning no panic occurred.
func handlePanic(ctx context.Context, logger *slog.Logger, recovered any) (bool, error) {
	if recovered == nil {
		return false, nil
	}
	stackBuf := make([]byte, panicStackBufSize)
	n := runtime.Stack(stackBuf, false)
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slogstash.LevelCritical.Level(), panicMessage,
		slog.Group("panic",
			slog.Any("value", recovered),
			slog.String("stack_trace", string(stackBuf[:n])),
		))
	return true, status.Error(codes.Internal, "internal server error caused by panic")
}

// peerAddress extracts the remote peer host from ctx, dropping the port
// when present.
func peerAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// streamKind names the stream shape for the rpc group's kind member.
func streamKind(info *grpc.StreamServerInfo) string {
	switch {
	case info.IsClientStream && info.IsServerStream:
		return "bidi_stream"
	case info.IsClientStream:
		return "client_stream"
	case info.IsServerStream:
		return "server_stream"
	default:
		return "unary"
	}
}

// loggerWithGroup returns base with the identity attrs preset under the
// rpc group, so application records carry the RPC context.
func loggerWithGroup(base *slog.Logger, attrs []slog.Attr) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(slog.Attr{Key: rpcGroupKey, Value: slog.GroupValue(attrs...)})
}
