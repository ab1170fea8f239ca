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

// Package slogstash provides structured logging for Go applications that
// ship their logs to Logstash. It builds on the standard library's
// [log/slog] package and emits one JSON document per record in the
// classic logstash event shape, writing to any [io.Writer]. The default
// destination is stdout, which keeps the library friendly for container
// platforms and local development alike.
//
// The primary entry point is [NewHandler], which returns an
// [slog.Handler] configured with sensible defaults:
//   - Documents carrying the reserved logstash keys `@message`,
//     `@timestamp`, `@source_host`, `@host`, `loglevel`, `worker_guid`,
//     and `logging_type`, with everything free-form nested under
//     `@fields`.
//   - Source host and address resolved once at construction, {name}
//     placeholders in messages filled from the record's fields, and
//     every field value coerced into something JSON can carry.
//   - Optional stack traces, source locations, and OpenTelemetry trace
//     correlation, plus the extended [Level] vocabulary (`DEBUG` through
//     `CRITICAL`).
//
// Handlers can be redirected to stderr, a file managed by slogstash, or
// any custom writer. When slogstash opens the file it also provides
// [Handler.ReopenLogFile] to cooperate with external rotation tools.
// Many aspects of the handler can be controlled through environment
// variables (for example `SLOGSTASH_LEVEL` or `SLOGSTASH_TARGET`) so the
// same binary can run locally and in production without code changes.
//
// Programs that already own their log pipeline can skip the handler and
// use [New] to build just the [Formatter], feeding it [Record] values
// and shipping the returned bytes themselves.
//
// # Subpackages
//
//   - [github.com/slogstash/slogstash/slogstashhttp] offers net/http
//     middleware and a client transport that log one document per
//     request and propagate trace context.
//   - [github.com/slogstash/slogstash/slogstashgrpc] provides client and
//     server interceptors that capture RPC metadata, map status codes to
//     levels, and optionally log payloads.
//
// # Quick Start
//
// A basic logger only needs a handler and slog:
//
//	handler, err := slogstash.NewHandler(os.Stdout)
//	if err != nil {
//	    log.Fatalf("create slogstash handler: %v", err)
//	}
//	defer handler.Close() // releases any file the handler opened
//
//	logger := slog.New(handler)
//	logger.Info("application started")
//
// # Configuration
//
// Use functional options such as [WithLevel], [WithExtraFields],
// [WithConfigJSON], [WithSourceHost], [WithRedirectToFile], and
// [WithTraceCorrelation] to adjust behaviour programmatically. The same
// knobs are reachable through SLOGSTASH_* environment variables; options
// win when both are present.
package slogstash
