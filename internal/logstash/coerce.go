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

package logstash

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// maxNestingDepth bounds recursion through field values so cyclic or
// pathologically deep structures degrade to a placeholder instead of
// overflowing the stack.
const maxNestingDepth = 64

// depthCapPlaceholder replaces values nested beyond maxNestingDepth. The
// coercion hook is not consulted for these: printing a cyclic value would
// itself recurse without bound.
const depthCapPlaceholder = "<max nesting depth exceeded>"

// DefaultCoerce renders a value the JSON encoder cannot represent.
// Timestamps become RFC 3339 text in UTC; everything else goes through
// fmt.Sprint. It never fails, whatever the input.
func DefaultCoerce(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// NormalizeFields rewrites fields in place so every value survives JSON
// encoding. Values the encoder represents natively pass through; errors,
// non-finite floats, and unsupported types are handed to coerce, which
// must return a string for any input. Nesting beyond maxNestingDepth is
// replaced with a placeholder. Nested generic maps and slices are
// rebuilt rather than mutated so caller-owned values stay untouched.
func NormalizeFields(fields map[string]any, coerce func(any) string) {
	for key, val := range fields {
		fields[key] = normalizeValue(val, coerce, 0)
	}
}

func normalizeValue(v any, coerce func(any) string, depth int) any {
	if depth >= maxNestingDepth {
		return depthCapPlaceholder
	}
	switch typed := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		json.Number, time.Time:
		return typed
	case float32:
		if f := float64(typed); math.IsNaN(f) || math.IsInf(f, 0) {
			return coerce(typed)
		}
		return typed
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return coerce(typed)
		}
		return typed
	case error:
		// Most error types marshal as "{}", which tells a reader
		// nothing. The message text is what downstream wants.
		return coerce(typed)
	case map[string]any:
		normalized := make(map[string]any, len(typed))
		for key, val := range typed {
			normalized[key] = normalizeValue(val, coerce, depth+1)
		}
		return normalized
	case []any:
		normalized := make([]any, len(typed))
		for i, item := range typed {
			normalized[i] = normalizeValue(item, coerce, depth+1)
		}
		return normalized
	default:
		if _, err := json.Marshal(typed); err != nil {
			return coerce(typed)
		}
		return typed
	}
}
