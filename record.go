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

package slogstash

import (
	"fmt"
	"strings"
	"time"
)

// Message is the payload of a Record. It is a closed union: the two
// implementations are TemplateMessage, for conventional text messages,
// and StructuredMessage, for records whose payload is a field mapping
// rather than text. A nil Message formats like an empty template.
type Message interface {
	// message marks implementations; the set is closed so Format never
	// has to guess what a payload is.
	message()
}

// TemplateMessage is a text message, optionally a format template with
// positional arguments in the fmt style.
type TemplateMessage struct {
	Format string
	Args   []any
}

func (TemplateMessage) message() {}

// Text resolves the template. Without arguments the format string is
// returned verbatim, so stray percent signs in plain messages stay
// untouched.
func (m TemplateMessage) Text() string {
	if len(m.Args) == 0 {
		return m.Format
	}
	return fmt.Sprintf(m.Format, m.Args...)
}

// StructuredMessage carries field values in place of message text. Its
// members fold into the record's field set during formatting and the
// document's @message becomes the empty string.
type StructuredMessage map[string]any

func (StructuredMessage) message() {}

// ExceptionInfo is a captured error triple: the error's type name, its
// message, and an optional formatted stack trace.
type ExceptionInfo struct {
	// Type is the concrete error type, e.g. "*fs.PathError".
	Type string
	// Value is the error message.
	Value string
	// Stack is a formatted stack trace in the runtime.Stack layout.
	// Empty when no trace was available at capture time.
	Stack string
}

// Lines renders the exception as an ordered list of strings for the
// document's exception field: one header line identifying the error,
// followed by one entry per stack line.
func (e *ExceptionInfo) Lines() []string {
	if e == nil {
		return nil
	}
	header := e.Value
	if e.Type != "" {
		if header != "" {
			header = e.Type + ": " + header
		} else {
			header = e.Type
		}
	}
	lines := make([]string, 0, 8)
	if header != "" {
		lines = append(lines, header)
	}
	if stack := strings.TrimRight(e.Stack, "\n"); stack != "" {
		lines = append(lines, strings.Split(stack, "\n")...)
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// CaptureException builds an ExceptionInfo from err. The stack trace is
// taken from the error itself when it exposes program counters through a
// StackTrace() []uintptr method anywhere in its chain (the
// github.com/pkg/errors convention); otherwise Stack stays empty.
// A nil error yields nil.
func CaptureException(err error) *ExceptionInfo {
	if err == nil {
		return nil
	}
	return &ExceptionInfo{
		Type:  fmt.Sprintf("%T", err),
		Value: err.Error(),
		Stack: extractAndFormatOriginStack(err),
	}
}

// Record is one log event handed to a Formatter. All members are
// optional; zero values degrade to the documented defaults rather than
// failing.
type Record struct {
	// Message is the event payload. Nil is treated as an empty
	// TemplateMessage.
	Message Message

	// LevelName is the severity name placed in the document's loglevel
	// slot, e.g. "INFO". When empty, a field named "levelname" in
	// Fields is consumed as a fallback.
	LevelName string

	// LoggerName identifies the emitting logger and becomes
	// worker_guid. When empty, a field named "name" in Fields is
	// consumed as a fallback.
	LoggerName string

	// Time is the event instant. The zero value means "now".
	Time time.Time

	// Fields carries free-form contextual attributes. The map is not
	// mutated by formatting.
	Fields map[string]any

	// Exception is an optional captured error. When nil, a Fields entry
	// named "exc_info" holding an ExceptionInfo is used instead.
	Exception *ExceptionInfo
}
