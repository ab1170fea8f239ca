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
	"fmt"
	"strings"
)

// ExpandMessage substitutes {name} placeholders in text with values from
// fields. Substitution is all or nothing: when any placeholder names a
// missing field, or the template is malformed, the original text is
// returned byte for byte, escapes included. Doubled braces ("{{", "}}")
// render as literal braces on success.
//
// Only simple named placeholders are supported. Positional ("{0}"),
// attribute ("{a.b}"), index ("{a[0]}"), format-spec ("{a:>8}"), and
// conversion ("{a!r}") forms leave the text unchanged rather than fail.
func ExpandMessage(text string, fields map[string]any) string {
	if !strings.ContainsAny(text, "{}") {
		return text
	}
	var out strings.Builder
	out.Grow(len(text) + 16)
	for i := 0; i < len(text); {
		switch text[i] {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return text
			}
			value, ok := lookupPlaceholder(text[i+1:i+1+end], fields)
			if !ok {
				return text
			}
			out.WriteString(value)
			i += end + 2
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				out.WriteByte('}')
				i += 2
				continue
			}
			return text
		default:
			out.WriteByte(text[i])
			i++
		}
	}
	return out.String()
}

// lookupPlaceholder resolves one placeholder name against fields. Names
// using syntax beyond a plain field key are rejected so the caller falls
// back to the unexpanded message.
func lookupPlaceholder(name string, fields map[string]any) (string, bool) {
	if name == "" {
		return "", false
	}
	digitsOnly := true
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '[', ']', ':', '!', '{', '}':
			return "", false
		}
		if name[i] < '0' || name[i] > '9' {
			digitsOnly = false
		}
	}
	if digitsOnly {
		return "", false
	}
	value, ok := fields[name]
	if !ok {
		return "", false
	}
	return fmt.Sprint(value), true
}
