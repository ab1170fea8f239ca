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
	"fmt"
	"log/slog"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	directionSent     = "sent"
	directionReceived = "received"
)

// payloadMarshal renders payload messages for logging. AllowPartial
// keeps half-built messages loggable; UseProtoNames matches the wire
// field names readers grep for.
var payloadMarshal = protojson.MarshalOptions{
	AllowPartial:  true,
	UseProtoNames: true,
}

// payloadGroup nests attrs under rpc.payload so payload records merge
// with the request logger's preset rpc identity group.
func payloadGroup(attrs ...slog.Attr) slog.Attr {
	return slog.Attr{
		Key: rpcGroupKey,
		Value: slog.GroupValue(slog.Attr{
			Key:   "payload",
			Value: slog.GroupValue(attrs...),
		}),
	}
}

// logPayload emits one debug record describing a message flowing in the
// given direction. Payloads over cfg.maxPayloadSize are truncated and
// flagged rather than dropped.
func logPayload(ctx context.Context, logger *slog.Logger, cfg *config, direction string, m any) {
	if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	msg, ok := m.(proto.Message)
	if !ok {
		logger.LogAttrs(ctx, slog.LevelDebug,
			fmt.Sprintf("gRPC payload %s (non-proto)", direction),
			payloadGroup(
				slog.String("direction", direction),
				slog.String("type", fmt.Sprintf("%T", m)),
			))
		return
	}
	typeName := string(msg.ProtoReflect().Descriptor().FullName())
	data, err := payloadMarshal.Marshal(msg)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "failed to marshal gRPC payload",
			payloadGroup(
				slog.String("direction", direction),
				slog.String("type", typeName),
			),
			slog.Any("error", err),
		)
		return
	}
	truncated := cfg.maxPayloadSize > 0 && len(data) > cfg.maxPayloadSize
	attrs := make([]slog.Attr, 0, 5)
	attrs = append(attrs,
		slog.String("direction", direction),
		slog.String("type", typeName),
		slog.Bool("truncated", truncated),
	)
	if truncated {
		attrs = append(attrs,
			slog.Int("original_size", len(data)),
			slog.String("preview", string(data[:cfg.maxPayloadSize])),
		)
	} else {
		attrs = append(attrs, slog.String("content", string(data)))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, fmt.Sprintf("gRPC payload %s", direction), payloadGroup(attrs...))
}
