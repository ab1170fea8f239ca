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
	"path"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
)

// unsetLatencySentinel marks a RequestInfo whose RPC has not finished.
const unsetLatencySentinel = int64(-1)

// RequestInfo tracks the progress of a single RPC. Interceptors create
// one per call and store it on the context; handlers may read it via
// InfoFromContext while the RPC is still running. All accessors are
// safe for concurrent use.
type RequestInfo struct {
	fullMethod string
	service    string
	method     string
	kind       string
	client     bool
	start      time.Time

	status    atomic.Uint32
	latencyNS atomic.Int64
	reqBytes  atomic.Int64
	respBytes atomic.Int64
	reqCount  atomic.Int64
	respCount atomic.Int64
	peer      atomic.Value
}

// newRequestInfo builds a RequestInfo for a starting RPC.
func newRequestInfo(fullMethod, kind string, client bool, start time.Time) *RequestInfo {
	service, method := splitMethodName(fullMethod)
	info := &RequestInfo{
		fullMethod: fullMethod,
		service:    service,
		method:     method,
		kind:       kind,
		client:     client,
		start:      start,
	}
	info.status.Store(uint32(codes.OK))
	info.latencyNS.Store(unsetLatencySentinel)
	return info
}

// splitMethodName splits a full method name like "/pkg.Service/Method"
// into its service and method parts.
func splitMethodName(fullMethod string) (service, method string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	service = path.Dir(trimmed)
	method = path.Base(trimmed)
	if service == "." || service == "" {
		service = "unknown"
	}
	return service, method
}

// setPeer records the remote peer address.
func (ri *RequestInfo) setPeer(addr string) {
	if addr == "" {
		return
	}
	ri.peer.Store(addr)
}

// Peer returns the remote peer address, or "" when unknown.
func (ri *RequestInfo) Peer() string {
	if v, ok := ri.peer.Load().(string); ok {
		return v
	}
	return ""
}

// recordRequest accounts for one received (server) or sent (client)
// request message.
func (ri *RequestInfo) recordRequest(msg any) {
	if msg == nil {
		return
	}
	if size := messageSize(msg); size > 0 {
		ri.reqBytes.Add(int64(size))
	}
	ri.reqCount.Add(1)
}

// recordResponse accounts for one sent (server) or received (client)
// response message.
func (ri *RequestInfo) recordResponse(msg any) {
	if msg == nil {
		return
	}
	if size := messageSize(msg); size > 0 {
		ri.respBytes.Add(int64(size))
	}
	ri.respCount.Add(1)
}

// finalize records the final status code and total latency.
func (ri *RequestInfo) finalize(code codes.Code, d time.Duration) {
	if d < 0 {
		d = 0
	}
	ri.status.Store(uint32(code))
	ri.latencyNS.Store(int64(d))
}

// Code returns the final status code, or codes.OK while the RPC is
// still running.
func (ri *RequestInfo) Code() codes.Code {
	return codes.Code(ri.status.Load())
}

// Latency returns the total RPC duration. While the RPC is running it
// returns the time elapsed so far.
func (ri *RequestInfo) Latency() time.Duration {
	ns := ri.latencyNS.Load()
	if ns == unsetLatencySentinel {
		return time.Since(ri.start)
	}
	return time.Duration(ns)
}

// RequestBytes returns the accumulated request message bytes.
func (ri *RequestInfo) RequestBytes() int64 { return ri.reqBytes.Load() }

// ResponseBytes returns the accumulated response message bytes.
func (ri *RequestInfo) ResponseBytes() int64 { return ri.respBytes.Load() }

// RequestCount returns the number of request messages observed.
func (ri *RequestInfo) RequestCount() int64 { return ri.reqCount.Load() }

// ResponseCount returns the number of response messages observed.
func (ri *RequestInfo) ResponseCount() int64 { return ri.respCount.Load() }

// Service returns the RPC service name, or "unknown".
func (ri *RequestInfo) Service() string { return ri.service }

// Method returns the bare RPC method name.
func (ri *RequestInfo) Method() string { return ri.method }

// FullMethod returns the full method name as gRPC presented it.
func (ri *RequestInfo) FullMethod() string { return ri.fullMethod }

// Kind returns the RPC kind: unary, client_stream, server_stream, or
// bidi_stream.
func (ri *RequestInfo) Kind() string { return ri.kind }

// IsClient reports whether this RequestInfo belongs to an outbound RPC.
func (ri *RequestInfo) IsClient() bool { return ri.client }

// Start returns the RPC start time.
func (ri *RequestInfo) Start() time.Time { return ri.start }

// identityAttrs returns the attributes identifying the RPC while it is
// in flight. They seed the request-scoped logger's rpc group.
func (ri *RequestInfo) identityAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if ri.service != "" {
		attrs = append(attrs, slog.String("service", ri.service))
	}
	if ri.method != "" {
		attrs = append(attrs, slog.String("method", ri.method))
	}
	if ri.kind != "" {
		attrs = append(attrs, slog.String("kind", ri.kind))
	}
	return attrs
}

// completionAttrs returns the attributes of the rpc group on the
// completion record.
func (ri *RequestInfo) completionAttrs(cfg *config) []slog.Attr {
	attrs := make([]slog.Attr, 0, 9)
	if ri.service != "" {
		attrs = append(attrs, slog.String("service", ri.service))
	}
	if ri.method != "" {
		attrs = append(attrs, slog.String("method", ri.method))
	}
	if ri.kind != "" {
		attrs = append(attrs, slog.String("kind", ri.kind))
	}
	attrs = append(attrs,
		slog.String("code", ri.Code().String()),
		slog.Duration("duration", ri.Latency()),
	)
	if cfg.includePeer {
		if peer := ri.Peer(); peer != "" {
			attrs = append(attrs, slog.String("peer", peer))
		}
	}
	if cfg.includeSizes {
		attrs = append(attrs,
			slog.Int64("request_size", ri.RequestBytes()),
			slog.Int64("response_size", ri.ResponseBytes()),
		)
		if ri.kind != "unary" {
			attrs = append(attrs,
				slog.Int64("request_count", ri.RequestCount()),
				slog.Int64("response_count", ri.ResponseCount()),
			)
		}
	}
	return attrs
}

// messageSize returns the wire size of a message, or 0 when it cannot
// be determined.
func messageSize(msg any) int {
	switch m := msg.(type) {
	case proto.Message:
		return proto.Size(m)
	case interface{ Size() int }:
		return m.Size()
	default:
		return 0
	}
}
