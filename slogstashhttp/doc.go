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

// Package slogstashhttp provides net/http integration for slogstash.
//
// The package offers:
//
//  1. [Middleware]: wraps an [http.Handler] to install a request-scoped
//     *slog.Logger in the request context and emit one completion record
//     per request. The record carries an "http" attribute group with the
//     method, path, status, response bytes, duration, remote IP, user
//     agent, and referer, so a slogstash handler renders it as a nested
//     http object inside @fields.
//
//  2. [Transport]: an [http.RoundTripper] that does the same for outbound
//     requests, injecting trace context (W3C traceparent and, optionally,
//     the legacy X-Cloud-Trace-Context header) before forwarding to the
//     base transport.
//
// Both constructors call slogstash.EnsurePropagation, so incoming legacy
// trace headers are decoded by the global propagator without further
// setup. Trace correlation fields on the emitted documents come from the
// slogstash handler itself; the middleware only has to make sure a span
// context is present on the request context.
//
// # Basic usage (server)
//
//	logger, err := slogstash.NewLogger(os.Stdout)
//	if err != nil {
//	    log.Fatalf("failed to create logger: %v", err)
//	}
//	defer logger.Close()
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
//	    slogstash.LoggerFromContext(r.Context()).InfoContext(r.Context(), "listing items")
//	    w.WriteHeader(http.StatusOK)
//	})
//
//	wrapped := slogstashhttp.Middleware(
//	    slogstashhttp.WithLogger(logger.Logger),
//	    slogstashhttp.WithHealthPath("/healthz"),
//	)(mux)
//	http.ListenAndServe(":8080", wrapped)
//
// # Basic usage (client)
//
//	client := &http.Client{
//	    Transport: slogstashhttp.Transport(nil, slogstashhttp.WithLogger(logger.Logger)),
//	}
//	resp, err := client.Get("https://api.example.com/items")
//
// Health-check paths registered with [WithHealthPath] have their completion
// records suppressed unless the response status is 400 or higher, keeping
// load balancer probes out of the log stream without hiding failures.
package slogstashhttp
