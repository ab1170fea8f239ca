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

// Package slogstashgrpc provides gRPC interceptors that pair slogstash
// documents with RPC traffic:
//
//  1. Server interceptors (unary and stream) install a request-scoped
//     logger, recover panics, and emit one completion record per RPC
//     with an "rpc" field group (service, method, kind, code, duration,
//     peer).
//  2. A unary client interceptor does the same for outgoing RPCs and
//     injects trace metadata on the wire.
//
// All constructors call [slogstash.EnsurePropagation], so inbound
// W3C traceparent and legacy X-Cloud-Trace-Context metadata surface as
// trace fields on every document without further setup. Completion
// severity follows the final status code; the mapping is replaceable
// with [WithLevels].
//
// Basic usage (server):
//
//	logger, err := slogstash.NewLogger(os.Stdout)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	srv := grpc.NewServer(slogstashgrpc.ServerOptions(
//		slogstashgrpc.WithLogger(logger.Logger),
//	)...)
//
// Basic usage (client):
//
//	conn, err := grpc.NewClient(addr, slogstashgrpc.DialOptions(
//		slogstashgrpc.WithLogger(logger.Logger),
//	)...)
//
// Handlers retrieve the request-scoped logger with
// [slogstash.LoggerFromContext] and per-RPC metadata with
// [InfoFromContext]. Records logged through that logger carry the rpc
// identity group automatically.
//
// Standard health check RPCs (grpc.health.v1.Health) are suppressed by
// default unless they finish with a non-OK code; disable the exemption
// with [WithSkipHealthChecks](false) or register additional quiet
// methods with [WithSkipMethods]. Payload logging is opt-in through
// [WithPayloadLogging] and emits protojson renderings at debug level,
// truncated to [WithMaxPayloadSize] bytes.
package slogstashgrpc
