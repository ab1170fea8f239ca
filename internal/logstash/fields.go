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

// LegacyFieldsKey names the nested defaults object recognized inside a
// configured extra-field set. Its contents merge into @fields alongside
// the top-level extras instead of appearing as a literal "@fields" field.
const LegacyFieldsKey = "@fields"

// BookkeepingKeys is the set of framework bookkeeping attributes stripped
// from every document's free-form fields. Each entry mirrors a record
// attribute whose value is either already represented by a reserved
// document key or is transport noise downstream consumers never index.
var BookkeepingKeys = map[string]struct{}{
	"message":         {},
	"exc_text":        {},
	"exc_info":        {},
	"msg":             {},
	"lineno":          {},
	"filename":        {},
	"funcName":        {},
	"levelno":         {},
	"module":          {},
	"msecs":           {},
	"pathname":        {},
	"process":         {},
	"processName":     {},
	"relativeCreated": {},
	"thread":          {},
	"threadName":      {},
}

// StripBookkeeping deletes every bookkeeping key from fields in place.
// Absent keys are ignored.
func StripBookkeeping(fields map[string]any) {
	for key := range BookkeepingKeys {
		delete(fields, key)
	}
}

// MergeFields builds the @fields payload for one document. Configured
// defaults land first, then the contents of a nested defaults object
// stored under LegacyFieldsKey, then the record's own fields. Later
// sources overwrite earlier ones key by key, so a record field always
// wins over a configured default of the same name.
//
// Default values are deep copied so repeated formatting never observes
// mutations leaking between documents. Record values are the caller's to
// alias; they are merged as is.
func MergeFields(defaults, record map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(record))
	for key, val := range defaults {
		if key == LegacyFieldsKey {
			continue
		}
		merged[key] = DeepCopyValue(val)
	}
	if nested, ok := defaults[LegacyFieldsKey].(map[string]any); ok {
		for key, val := range nested {
			merged[key] = DeepCopyValue(val)
		}
	}
	for key, val := range record {
		merged[key] = val
	}
	return merged
}

// DeepCopyMap returns a copy of m whose nested generic maps and slices
// are copied as well. A nil map stays nil.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return copyMap(m, 0)
}

// DeepCopyValue copies v when it is a generic map or slice, recursively.
// Every other type, including typed maps and slices, is returned as is.
func DeepCopyValue(v any) any {
	return copyValue(v, 0)
}

func copyValue(v any, depth int) any {
	if depth >= maxNestingDepth {
		return v
	}
	switch typed := v.(type) {
	case map[string]any:
		return copyMap(typed, depth)
	case []any:
		copied := make([]any, len(typed))
		for i, item := range typed {
			copied[i] = copyValue(item, depth+1)
		}
		return copied
	default:
		return v
	}
}

func copyMap(m map[string]any, depth int) map[string]any {
	copied := make(map[string]any, len(m))
	for key, val := range m {
		copied[key] = copyValue(val, depth+1)
	}
	return copied
}
