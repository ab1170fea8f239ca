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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/slogstash/slogstash"
)

// newDocLogger builds a slogstash logger writing documents into a buffer.
func newDocLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := slogstash.NewLogger(&buf)
	if err != nil {
		t.Fatalf("slogstash.NewLogger() returned %v, want nil", err)
	}
	t.Cleanup(func() {
		if cerr := logger.Close(); cerr != nil {
			t.Errorf("Logger.Close() returned %v, want nil", cerr)
		}
	})
	return logger.Logger, &buf
}

// decodeDocuments splits JSON log lines and converts them into maps for easier assertions.
func decodeDocuments(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	content := strings.TrimSpace(buf.String())
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	docs := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			t.Fatalf("json.Unmarshal(%q) returned %v", line, err)
		}
		docs = append(docs, doc)
	}
	return docs
}

// fieldsOf extracts the @fields object from a decoded document.
func fieldsOf(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	fields, ok := doc["@fields"].(map[string]any)
	if !ok {
		t.Fatalf("@fields missing or not an object: %v", doc)
	}
	return fields
}

// rpcGroupOf extracts the rpc group from a decoded document's @fields.
func rpcGroupOf(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	group, ok := fieldsOf(t, doc)["rpc"].(map[string]any)
	if !ok {
		t.Fatalf("@fields.rpc missing or not an object: %v", doc)
	}
	return group
}

// spanContextWithIDs builds a valid sampled span context from hex IDs.
func spanContextWithIDs(t *testing.T, traceHex, spanHex string) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		t.Fatalf("trace.TraceIDFromHex(%q) returned %v", traceHex, err)
	}
	spanID, err := trace.SpanIDFromHex(spanHex)
	if err != nil {
		t.Fatalf("trace.SpanIDFromHex(%q) returned %v", spanHex, err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

// TestUnaryServerInterceptorEmitsCompletionRecord verifies one document per
// RPC with the expected rpc group members.
func TestUnaryServerInterceptorEmitsCompletionRecord(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	peerCtx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.IPv4(203, 0, 113, 50), Port: 4321},
	})

	resp, err := interceptor(peerCtx, wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("payload"), nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if resp == nil {
		t.Fatal("interceptor returned nil response, want handler response")
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	doc := docs[0]
	if got, want := doc["@message"], "finished gRPC call"; got != want {
		t.Errorf("@message = %v, want %v", got, want)
	}
	if got, want := doc["loglevel"], "INFO"; got != want {
		t.Errorf("loglevel = %v, want %v", got, want)
	}

	group := rpcGroupOf(t, doc)
	checks := []struct {
		key  string
		want any
	}{
		{key: "service", want: "items.v1.ItemService"},
		{key: "method", want: "GetItem"},
		{key: "kind", want: "unary"},
		{key: "code", want: "OK"},
		{key: "peer", want: "203.0.113.50"},
	}
	for _, check := range checks {
		if got := group[check.key]; got != check.want {
			t.Errorf("rpc group %s = %v, want %v", check.key, got, check.want)
		}
	}
	if duration, ok := group["duration"].(string); !ok || duration == "" {
		t.Errorf("rpc group duration = %v, want non-empty string", group["duration"])
	}
	if size, ok := group["request_size"].(float64); !ok || size <= 0 {
		t.Errorf("rpc group request_size = %v, want positive number", group["request_size"])
	}
	if size, ok := group["response_size"].(float64); !ok || size <= 0 {
		t.Errorf("rpc group response_size = %v, want positive number", group["response_size"])
	}
	if _, ok := group["request_count"]; ok {
		t.Errorf("rpc group carries request_count on a unary call: %v", group)
	}
}

// TestUnaryServerInterceptorLevelsFollowStatusCodes verifies the final status
// code drives the completion record severity.
func TestUnaryServerInterceptorLevelsFollowStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
	}{
		{
			name:      "OKLogsInfo",
			err:       nil,
			wantLevel: "INFO",
			wantCode:  "OK",
		},
		{
			name:      "CanceledLogsInfo",
			err:       status.Error(codes.Canceled, "client went away"),
			wantLevel: "INFO",
			wantCode:  "Canceled",
		},
		{
			name:      "NotFoundLogsWarning",
			err:       status.Error(codes.NotFound, "missing item"),
			wantLevel: "WARNING",
			wantCode:  "NotFound",
		},
		{
			name:      "UnavailableLogsWarning",
			err:       status.Error(codes.Unavailable, "backend down"),
			wantLevel: "WARNING",
			wantCode:  "Unavailable",
		},
		{
			name:      "InternalLogsError",
			err:       status.Error(codes.Internal, "broken"),
			wantLevel: "ERROR",
			wantCode:  "Internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := newDocLogger(t)
			interceptor := UnaryServerInterceptor(WithLogger(logger))
			serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

			_, err := interceptor(context.Background(), wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
				return nil, tc.err
			})
			if !errors.Is(err, tc.err) {
				t.Fatalf("interceptor returned %v, want %v", err, tc.err)
			}

			docs := decodeDocuments(t, buf)
			if len(docs) != 1 {
				t.Fatalf("got %d documents, want 1", len(docs))
			}
			doc := docs[0]
			if got := doc["loglevel"]; got != tc.wantLevel {
				t.Errorf("loglevel = %v, want %v", got, tc.wantLevel)
			}
			group := rpcGroupOf(t, doc)
			if got := group["code"]; got != tc.wantCode {
				t.Errorf("rpc group code = %v, want %v", got, tc.wantCode)
			}
			if tc.err != nil {
				if errMsg, ok := fieldsOf(t, doc)["error"].(string); !ok || errMsg == "" {
					t.Errorf("@fields.error = %v, want non-empty string", fieldsOf(t, doc)["error"])
				}
			}
		})
	}
}

// TestUnaryServerInterceptorInjectsRequestLogger verifies handlers can pull a
// logger carrying the rpc identity group from the context.
func TestUnaryServerInterceptorInjectsRequestLogger(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	_, err := interceptor(context.Background(), wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
		slogstash.LoggerFromContext(ctx).InfoContext(ctx, "handling item")
		return wrapperspb.String("done"), nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	appDoc := docs[0]
	if got, want := appDoc["@message"], "handling item"; got != want {
		t.Errorf("@message = %v, want %v", got, want)
	}
	appGroup := rpcGroupOf(t, appDoc)
	if got, want := appGroup["method"], "GetItem"; got != want {
		t.Errorf("application record rpc group method = %v, want %v", got, want)
	}
	if got, want := appGroup["kind"], "unary"; got != want {
		t.Errorf("application record rpc group kind = %v, want %v", got, want)
	}
	if _, ok := appGroup["code"]; ok {
		t.Errorf("application record carries completion code: %v", appGroup)
	}

	if got, want := docs[1]["@message"], "finished gRPC call"; got != want {
		t.Errorf("@message = %v, want %v", got, want)
	}
	if _, ok := rpcGroupOf(t, docs[1])["code"]; !ok {
		t.Errorf("completion record missing rpc group code: %v", docs[1])
	}
}

// TestUnaryServerInterceptorInfoFromContext verifies handlers can observe the
// RPC in flight through InfoFromContext.
func TestUnaryServerInterceptorInfoFromContext(t *testing.T) {
	t.Parallel()

	logger, _ := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	sawInfo := false
	_, err := interceptor(context.Background(), wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
		info, ok := InfoFromContext(ctx)
		if !ok {
			t.Error("InfoFromContext(ctx) returned false inside handler")
			return nil, nil
		}
		sawInfo = true
		if got, want := info.Service(), "items.v1.ItemService"; got != want {
			t.Errorf("Service() = %q, want %q", got, want)
		}
		if got, want := info.Method(), "GetItem"; got != want {
			t.Errorf("Method() = %q, want %q", got, want)
		}
		if got, want := info.FullMethod(), "/items.v1.ItemService/GetItem"; got != want {
			t.Errorf("FullMethod() = %q, want %q", got, want)
		}
		if got, want := info.Kind(), "unary"; got != want {
			t.Errorf("Kind() = %q, want %q", got, want)
		}
		if info.IsClient() {
			t.Error("IsClient() = true, want false")
		}
		if got, want := info.Code(), codes.OK; got != want {
			t.Errorf("Code() = %v, want %v", got, want)
		}
		if got := info.RequestCount(); got != 1 {
			t.Errorf("RequestCount() = %d, want 1", got)
		}
		if got := info.RequestBytes(); got <= 0 {
			t.Errorf("RequestBytes() = %d, want positive", got)
		}
		if info.Start().IsZero() {
			t.Error("Start() is zero, want RPC start time")
		}
		return wrapperspb.String("done"), nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if !sawInfo {
		t.Fatal("handler never observed RequestInfo")
	}

	if _, ok := InfoFromContext(context.Background()); ok {
		t.Error("InfoFromContext(context.Background()) = true, want false")
	}
}

// TestUnaryServerInterceptorRecoversPanic verifies panics become a critical
// record plus an internal completion instead of crashing the server.
func TestUnaryServerInterceptorRecoversPanic(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	resp, err := interceptor(context.Background(), wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
		panic("kaboom")
	})
	if resp != nil {
		t.Errorf("interceptor returned response %v, want nil", resp)
	}
	if got, want := status.Code(err), codes.Internal; got != want {
		t.Fatalf("status.Code(err) = %v, want %v", got, want)
	}
	if !strings.Contains(err.Error(), "internal server error caused by panic") {
		t.Errorf("err = %v, want panic conversion message", err)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	panicDoc := docs[0]
	if got, want := panicDoc["@message"], "recovered panic during gRPC call"; got != want {
		t.Errorf("@message = %v, want %v", got, want)
	}
	if got, want := panicDoc["loglevel"], "CRITICAL"; got != want {
		t.Errorf("loglevel = %v, want %v", got, want)
	}
	fields := fieldsOf(t, panicDoc)
	panicGroup, ok := fields["panic"].(map[string]any)
	if !ok {
		t.Fatalf("@fields.panic missing or not an object: %v", panicDoc)
	}
	if got, want := panicGroup["value"], "kaboom"; got != want {
		t.Errorf("panic value = %v, want %v", got, want)
	}
	if stack, ok := panicGroup["stack_trace"].(string); !ok || stack == "" {
		t.Errorf("panic stack_trace = %v, want non-empty string", panicGroup["stack_trace"])
	}
	if got, want := rpcGroupOf(t, panicDoc)["method"], "GetItem"; got != want {
		t.Errorf("panic record rpc group method = %v, want %v", got, want)
	}

	completionDoc := docs[1]
	if got, want := completionDoc["loglevel"], "CRITICAL"; got != want {
		t.Errorf("completion loglevel = %v, want %v", got, want)
	}
	if got, want := rpcGroupOf(t, completionDoc)["code"], "Internal"; got != want {
		t.Errorf("completion rpc group code = %v, want %v", got, want)
	}
	if errMsg, ok := fieldsOf(t, completionDoc)["error"].(string); !ok || !strings.Contains(errMsg, "panic") {
		t.Errorf("completion @fields.error = %v, want panic conversion message", fieldsOf(t, completionDoc)["error"])
	}
}

// TestUnaryServerInterceptorPanicPropagatesWhenDisabled verifies disabling
// recovery lets panics unwind without emitting misleading completions.
func TestUnaryServerInterceptorPanicPropagatesWhenDisabled(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger), WithPanicRecovery(false))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	func() {
		defer func() {
			if recovered := recover(); recovered != "kaboom" {
				t.Errorf("recover() = %v, want %q", recovered, "kaboom")
			}
		}()
		_, _ = interceptor(context.Background(), wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
			panic("kaboom")
		})
	}()

	if docs := decodeDocuments(t, buf); len(docs) != 0 {
		t.Errorf("got %d documents, want 0", len(docs))
	}
}

// TestUnaryServerInterceptorSkipsHealthChecks verifies health checks are
// suppressed while they finish OK but still logged on failure.
func TestUnaryServerInterceptorSkipsHealthChecks(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger))
	healthInfo := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	if _, err := interceptor(context.Background(), wrapperspb.String("check"), healthInfo, func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("serving"), nil
	}); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if _, err := interceptor(context.Background(), wrapperspb.String("check"), healthInfo, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Unavailable, "not serving")
	}); err == nil {
		t.Fatal("interceptor returned nil error, want Unavailable")
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1: healthy checks are suppressed", len(docs))
	}
	if got, want := rpcGroupOf(t, docs[0])["code"], "Unavailable"; got != want {
		t.Errorf("rpc group code = %v, want %v", got, want)
	}

	verbose, verboseBuf := newDocLogger(t)
	verboseInterceptor := UnaryServerInterceptor(WithLogger(verbose), WithSkipHealthChecks(false))
	if _, err := verboseInterceptor(context.Background(), wrapperspb.String("check"), healthInfo, func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("serving"), nil
	}); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if docs := decodeDocuments(t, verboseBuf); len(docs) != 1 {
		t.Errorf("got %d documents, want 1 with health suppression disabled", len(docs))
	}
}

// TestUnaryServerInterceptorSkipMethods verifies registered methods are
// suppressed while other methods keep logging.
func TestUnaryServerInterceptorSkipMethods(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger), WithSkipMethods("/items.v1.ItemService/Watch"))
	okHandler := func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("done"), nil
	}

	if _, err := interceptor(context.Background(), wrapperspb.String("w"), &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/Watch"}, okHandler); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if _, err := interceptor(context.Background(), wrapperspb.String("g"), &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}, okHandler); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if got, want := rpcGroupOf(t, docs[0])["method"], "GetItem"; got != want {
		t.Errorf("rpc group method = %v, want %v", got, want)
	}
}

// TestUnaryServerInterceptorExtractsTraceMetadata verifies remote trace
// context in incoming metadata surfaces as @fields trace members.
func TestUnaryServerInterceptorExtractsTraceMetadata(t *testing.T) {
	logger, buf := newDocLogger(t)
	interceptor := UnaryServerInterceptor(WithLogger(logger), WithPropagators(propagation.TraceContext{}))
	serverInfo := &grpc.UnaryServerInfo{FullMethod: "/items.v1.ItemService/GetItem"}

	md := metadata.Pairs("traceparent", "00-105445aa7843bc8bf206b12000100000-000000000000000a-01")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	_, err := interceptor(ctx, wrapperspb.String("get"), serverInfo, func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("done"), nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	fields := fieldsOf(t, docs[0])
	if got, want := fields["trace_id"], "105445aa7843bc8bf206b12000100000"; got != want {
		t.Errorf("@fields.trace_id = %v, want %v", got, want)
	}
	if got, want := fields["span_id"], "000000000000000a"; got != want {
		t.Errorf("@fields.span_id = %v, want %v", got, want)
	}
	if got, want := fields["trace_sampled"], true; got != want {
		t.Errorf("@fields.trace_sampled = %v, want %v", got, want)
	}
}

// TestStreamServerInterceptorEmitsCompletionRecord verifies stream handlers
// get the enriched context and message traffic is counted.
func TestStreamServerInterceptorEmitsCompletionRecord(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := StreamServerInterceptor(WithLogger(logger))
	streamInfo := &grpc.StreamServerInfo{
		FullMethod:     "/items.v1.ItemService/SyncItems",
		IsClientStream: true,
		IsServerStream: true,
	}
	fake := &fakeServerStream{
		ctx:  context.Background(),
		recv: []proto.Message{wrapperspb.String("one"), wrapperspb.String("two")},
	}

	err := interceptor(nil, fake, streamInfo, func(srv any, stream grpc.ServerStream) error {
		if _, ok := InfoFromContext(stream.Context()); !ok {
			t.Error("InfoFromContext(stream.Context()) returned false inside handler")
		}
		for {
			msg := &wrapperspb.StringValue{}
			if err := stream.RecvMsg(msg); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if err := stream.SendMsg(wrapperspb.String(strings.ToUpper(msg.GetValue()))); err != nil {
				return err
			}
		}
	})
	if err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if len(fake.sent) != 2 {
		t.Errorf("stream sent %d messages, want 2", len(fake.sent))
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	group := rpcGroupOf(t, docs[0])
	if got, want := group["kind"], "bidi_stream"; got != want {
		t.Errorf("rpc group kind = %v, want %v", got, want)
	}
	if got, want := group["code"], "OK"; got != want {
		t.Errorf("rpc group code = %v, want %v", got, want)
	}
	if got, ok := group["request_count"].(float64); !ok || got != 2 {
		t.Errorf("rpc group request_count = %v, want 2", group["request_count"])
	}
	if got, ok := group["response_count"].(float64); !ok || got != 2 {
		t.Errorf("rpc group response_count = %v, want 2", group["response_count"])
	}
	if size, ok := group["request_size"].(float64); !ok || size <= 0 {
		t.Errorf("rpc group request_size = %v, want positive number", group["request_size"])
	}
}

// TestStreamServerInterceptorRecoversPanic verifies stream panics convert to
// an internal error with a critical completion record.
func TestStreamServerInterceptorRecoversPanic(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := StreamServerInterceptor(WithLogger(logger))
	streamInfo := &grpc.StreamServerInfo{
		FullMethod:     "/items.v1.ItemService/WatchItems",
		IsServerStream: true,
	}
	fake := &fakeServerStream{ctx: context.Background()}

	err := interceptor(nil, fake, streamInfo, func(srv any, stream grpc.ServerStream) error {
		panic("stream kaboom")
	})
	if got, want := status.Code(err), codes.Internal; got != want {
		t.Fatalf("status.Code(err) = %v, want %v", got, want)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	completion := docs[1]
	if got, want := completion["loglevel"], "CRITICAL"; got != want {
		t.Errorf("loglevel = %v, want %v", got, want)
	}
	group := rpcGroupOf(t, completion)
	if got, want := group["kind"], "server_stream"; got != want {
		t.Errorf("rpc group kind = %v, want %v", got, want)
	}
	if got, want := group["code"], "Internal"; got != want {
		t.Errorf("rpc group code = %v, want %v", got, want)
	}
}

// TestUnaryClientInterceptorEmitsCompletionRecord verifies outbound RPCs log
// one completion record and expose RequestInfo to the invoker context.
func TestUnaryClientInterceptorEmitsCompletionRecord(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryClientInterceptor(WithLogger(logger))

	var capturedCtx context.Context
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		capturedCtx = ctx
		if out, ok := reply.(*wrapperspb.StringValue); ok {
			out.Value = "pong"
		}
		return nil
	}

	reply := &wrapperspb.StringValue{}
	if err := interceptor(context.Background(), "/items.v1.ItemService/GetItem", wrapperspb.String("ping"), reply, nil, invoker); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if got, want := reply.GetValue(), "pong"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if capturedCtx == nil {
		t.Fatal("invoker never ran")
	}
	if _, ok := InfoFromContext(capturedCtx); !ok {
		t.Error("InfoFromContext(invoker ctx) returned false")
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	doc := docs[0]
	if got, want := doc["@message"], "finished outbound gRPC call"; got != want {
		t.Errorf("@message = %v, want %v", got, want)
	}
	group := rpcGroupOf(t, doc)
	if got, want := group["service"], "items.v1.ItemService"; got != want {
		t.Errorf("rpc group service = %v, want %v", got, want)
	}
	if got, want := group["code"], "OK"; got != want {
		t.Errorf("rpc group code = %v, want %v", got, want)
	}
	if size, ok := group["request_size"].(float64); !ok || size <= 0 {
		t.Errorf("rpc group request_size = %v, want positive number", group["request_size"])
	}
	if size, ok := group["response_size"].(float64); !ok || size <= 0 {
		t.Errorf("rpc group response_size = %v, want positive number", group["response_size"])
	}
}

// TestUnaryClientInterceptorInjectsTraceMetadata verifies outgoing metadata
// carries W3C and legacy trace entries without mutating the caller's copy.
func TestUnaryClientInterceptorInjectsTraceMetadata(t *testing.T) {
	logger, _ := newDocLogger(t)
	interceptor := UnaryClientInterceptor(
		WithLogger(logger),
		WithPropagators(propagation.TraceContext{}),
		WithLegacyXCloudInjection(true),
	)

	sc := spanContextWithIDs(t, "105445aa7843bc8bf206b12000100000", "000000000000000a")
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	callerMD := metadata.Pairs("x-request-id", "abc-123")
	ctx = metadata.NewOutgoingContext(ctx, callerMD)

	var outMD metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		outMD, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	if err := interceptor(ctx, "/items.v1.ItemService/GetItem", wrapperspb.String("ping"), &wrapperspb.StringValue{}, nil, invoker); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}

	if got := outMD.Get("traceparent"); len(got) != 1 || got[0] != "00-105445aa7843bc8bf206b12000100000-000000000000000a-01" {
		t.Errorf("outgoing traceparent = %v, want W3C header", got)
	}
	if got := outMD.Get("x-cloud-trace-context"); len(got) != 1 || got[0] != "105445aa7843bc8bf206b12000100000/10;o=1" {
		t.Errorf("outgoing x-cloud-trace-context = %v, want legacy header", got)
	}
	if got := outMD.Get("x-request-id"); len(got) != 1 || got[0] != "abc-123" {
		t.Errorf("outgoing metadata lost caller entries: %v", outMD)
	}
	if got := callerMD.Get("traceparent"); len(got) != 0 {
		t.Errorf("caller metadata mutated: %v", callerMD)
	}
}

// TestUnaryClientInterceptorSkipsInjectionWhenDisabled verifies trace
// propagation can be turned off per client.
func TestUnaryClientInterceptorSkipsInjectionWhenDisabled(t *testing.T) {
	t.Parallel()

	logger, _ := newDocLogger(t)
	interceptor := UnaryClientInterceptor(
		WithLogger(logger),
		WithPropagators(propagation.TraceContext{}),
		WithTracePropagation(false),
	)

	sc := spanContextWithIDs(t, "105445aa7843bc8bf206b12000100000", "000000000000000a")
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var outMD metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		outMD, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	if err := interceptor(ctx, "/items.v1.ItemService/GetItem", wrapperspb.String("ping"), &wrapperspb.StringValue{}, nil, invoker); err != nil {
		t.Fatalf("interceptor returned %v, want nil", err)
	}
	if got := outMD.Get("traceparent"); len(got) != 0 {
		t.Errorf("outgoing traceparent = %v, want none", got)
	}
	if got := outMD.Get("x-cloud-trace-context"); len(got) != 0 {
		t.Errorf("outgoing x-cloud-trace-context = %v, want none", got)
	}
}

// TestUnaryClientInterceptorLogsErrors verifies failed calls return the
// invoker error unchanged and log it with the mapped severity.
func TestUnaryClientInterceptorLogsErrors(t *testing.T) {
	t.Parallel()

	logger, buf := newDocLogger(t)
	interceptor := UnaryClientInterceptor(WithLogger(logger))

	wantErr := status.Error(codes.Unavailable, "backend down")
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return wantErr
	}

	err := interceptor(context.Background(), "/items.v1.ItemService/GetItem", wrapperspb.String("ping"), &wrapperspb.StringValue{}, nil, invoker)
	if !errors.Is(err, wantErr) {
		t.Fatalf("interceptor returned %v, want %v", err, wantErr)
	}

	docs := decodeDocuments(t, buf)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	doc := docs[0]
	if got, want := doc["loglevel"], "WARNING"; got != want {
		t.Errorf("loglevel = %v, want %v", got, want)
	}
	if got, want := rpcGroupOf(t, doc)["code"], "Unavailable"; got != want {
		t.Errorf("rpc group code = %v, want %v", got, want)
	}
	if errMsg, ok := fieldsOf(t, doc)["error"].(string); !ok || !strings.Contains(errMsg, "backend down") {
		t.Errorf("@fields.error = %v, want invoker error text", fieldsOf(t, doc)["error"])
	}
}

// TestServerOptionsBundleInterceptors verifies ServerOptions composes the
// stats handler and both interceptor chains.
func TestServerOptionsBundleInterceptors(t *testing.T) {
	t.Parallel()

	if got := len(ServerOptions()); got != 3 {
		t.Errorf("ServerOptions() returned %d options, want 3", got)
	}
	if got := len(ServerOptions(WithOTel(false))); got != 2 {
		t.Errorf("ServerOptions(WithOTel(false)) returned %d options, want 2", got)
	}
}

// TestDialOptionsBundleInterceptor verifies DialOptions composes the stats
// handler and the unary client interceptor.
func TestDialOptionsBundleInterceptor(t *testing.T) {
	t.Parallel()

	if got := len(DialOptions()); got != 2 {
		t.Errorf("DialOptions() returned %d options, want 2", got)
	}
	if got := len(DialOptions(WithOTel(false))); got != 1 {
		t.Errorf("DialOptions(WithOTel(false)) returned %d options, want 1", got)
	}
}

// TestSplitMethodName verifies service and method extraction from gRPC full
// method names.
func TestSplitMethodName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fullMethod  string
		wantService string
		wantMethod  string
	}{
		{
			name:        "FullMethodPath",
			fullMethod:  "/items.v1.ItemService/GetItem",
			wantService: "items.v1.ItemService",
			wantMethod:  "GetItem",
		},
		{
			name:        "NoLeadingSlash",
			fullMethod:  "items.v1.ItemService/GetItem",
			wantService: "items.v1.ItemService",
			wantMethod:  "GetItem",
		},
		{
			name:        "MethodOnly",
			fullMethod:  "/GetItem",
			wantService: "unknown",
			wantMethod:  "GetItem",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, method := splitMethodName(tc.fullMethod)
			if service != tc.wantService {
				t.Errorf("splitMethodName(%q) service = %q, want %q", tc.fullMethod, service, tc.wantService)
			}
			if method != tc.wantMethod {
				t.Errorf("splitMethodName(%q) method = %q, want %q", tc.fullMethod, method, tc.wantMethod)
			}
		})
	}
}

// TestStreamKind verifies stream shape naming.
func TestStreamKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info *grpc.StreamServerInfo
		want string
	}{
		{
			name: "BidiStream",
			info: &grpc.StreamServerInfo{IsClientStream: true, IsServerStream: true},
			want: "bidi_stream",
		},
		{
			name: "ClientStream",
			info: &grpc.StreamServerInfo{IsClientStream: true},
			want: "client_stream",
		},
		{
			name: "ServerStream",
			info: &grpc.StreamServerInfo{IsServerStream: true},
			want: "server_stream",
		},
		{
			name: "NeitherFlag",
			info: &grpc.StreamServerInfo{},
			want: "unary",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := streamKind(tc.info); got != tc.want {
				t.Errorf("streamKind(%+v) = %q, want %q", tc.info, got, tc.want)
			}
		})
	}
}

// TestPeerAddress verifies peer extraction drops ports and tolerates
// non-network addresses.
func TestPeerAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "TCPPeer",
			ctx: peer.NewContext(context.Background(), &peer.Peer{
				Addr: &net.TCPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 9000},
			}),
			want: "192.0.2.7",
		},
		{
			name: "UnixPeer",
			ctx: peer.NewContext(context.Background(), &peer.Peer{
				Addr: &net.UnixAddr{Name: "/tmp/slogstash.sock", Net: "unix"},
			}),
			want: "/tmp/slogstash.sock",
		},
		{
			name: "NoPeer",
			ctx:  context.Background(),
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := peerAddress(tc.ctx); got != tc.want {
				t.Errorf("peerAddress() = %q, want %q", got, tc.want)
			}
		})
	}
}

// fakeServerStream feeds queued messages to RecvMsg and collects SendMsg
// output for assertions.
type fakeServerStream struct {
	ctx     context.Context
	recv    []proto.Message
	recvIdx int
	sent    []any
}

func (s *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (s *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (s *fakeServerStream) SetTrailer(metadata.MD)       {}
func (s *fakeServerStream) Context() context.Context     { return s.ctx }

func (s *fakeServerStream) SendMsg(m any) error {
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeServerStream) RecvMsg(m any) error {
	if s.recvIdx >= len(s.recv) {
		return io.EOF
	}
	target, ok := m.(proto.Message)
	if !ok {
		return fmt.Errorf("recv into non-proto message %T", m)
	}
	proto.Merge(target, s.recv[s.recvIdx])
	s.recvIdx++
	return nil
}
