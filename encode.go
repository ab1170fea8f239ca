package slogstash

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

// EncodeFunc serializes one assembled document. Implementations must
// produce a single JSON object; a trailing newline, if any, is stripped
// by Format and re-added by transports that frame with newlines.
type EncodeFunc func(doc Document) ([]byte, error)

type jsonEncoderOption func(*json.Encoder)

var jsonEncoderOptions = []jsonEncoderOption{
	func(enc *json.Encoder) {
		enc.SetEscapeHTML(false)
	},
}

var jsonBufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func encodeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	for _, opt := range jsonEncoderOptions {
		opt(enc)
	}
	// Encode appends a newline and streams directly to the writer.
	return enc.Encode(payload)
}
