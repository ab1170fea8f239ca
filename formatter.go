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
	"bytes"
	"time"

	"github.com/slogstash/slogstash/internal/logstash"
)

// TimestampLayout is the @timestamp format: UTC with six fractional
// digits and a literal Z, e.g. "2026-08-25T14:03:07.123456Z".
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Document is the canonical JSON shape of one formatted log event.
// Reserved keys appear in this fixed order; everything free-form lives in
// the nested @fields object, which is never null.
type Document struct {
	Message    string         `json:"@message"`
	Timestamp  string         `json:"@timestamp"`
	SourceHost string         `json:"@source_host"`
	Host       string         `json:"@host"`
	LogLevel   string         `json:"loglevel"`
	WorkerGUID string         `json:"worker_guid"`
	Type       string         `json:"logging_type"`
	Fields     map[string]any `json:"@fields"`
}

// Formatter converts Records into JSON documents. All state is fixed at
// construction, so a single Formatter is safe for concurrent use by any
// number of goroutines without external locking.
type Formatter struct {
	extra      map[string]any
	sourceHost string
	hostIP     string
	typeTag    string
	loggerName string
	coerce     func(any) string
	encode     EncodeFunc
}

// New builds a Formatter from the supplied options. When no source host
// or host IP is injected, both are resolved once here (hostname via the
// operating system, address via the resolver) and failures degrade to
// empty strings rather than errors. The only fatal condition is a
// malformed WithConfigJSON payload, reported as ErrInvalidConfig.
//
// New ignores environment variables; the handler layer reads those and
// feeds them in as lower-precedence defaults.
//
// Name resolution can block on a slow name service. Callers sensitive to
// startup latency should inject WithSourceHost and WithHostIP.
func New(opts ...Option) (*Formatter, error) {
	return newFormatter(applyOptions(opts), logstash.Config{})
}

// newFormatter assembles a Formatter from collected options plus
// environment-derived defaults. Precedence per setting, highest first:
// option, config payload, environment, detection or built-in default.
func newFormatter(builder *options, env logstash.Config) (*Formatter, error) {
	extra := map[string]any{}
	for key, val := range env.Extra {
		extra[key] = val
	}
	payloadHost := ""
	if builder.configPayload != nil {
		parsedExtra, parsedHost, err := logstash.ParseFormatterConfig(*builder.configPayload)
		if err != nil {
			return nil, err
		}
		for key, val := range parsedExtra {
			extra[key] = val
		}
		payloadHost = parsedHost
	}
	for _, set := range builder.extraSets {
		for key, val := range set {
			extra[key] = val
		}
	}

	localHost := logstash.ResolveSourceHost()

	sourceHost := localHost
	switch {
	case builder.sourceHost != nil:
		sourceHost = *builder.sourceHost
	case payloadHost != "":
		sourceHost = payloadHost
	case env.SourceHost != "":
		sourceHost = env.SourceHost
	}

	// The reported address is always the local machine's, keyed on the
	// hostname the OS reports even when @source_host is overridden.
	hostIP := ""
	if builder.hostIP != nil {
		hostIP = *builder.hostIP
	} else {
		hostIP = logstash.ResolveHostIP(localHost)
	}

	typeTag := logstash.DefaultTypeTag
	switch {
	case builder.typeTag != nil:
		typeTag = *builder.typeTag
	case env.TypeTag != "":
		typeTag = env.TypeTag
	}

	loggerName := ""
	switch {
	case builder.loggerName != nil:
		loggerName = *builder.loggerName
	case env.LoggerName != "":
		loggerName = env.LoggerName
	}

	coerce := builder.coerceFunc
	if coerce == nil {
		coerce = logstash.DefaultCoerce
	}

	return &Formatter{
		extra:      logstash.DeepCopyMap(extra),
		sourceHost: sourceHost,
		hostIP:     hostIP,
		typeTag:    typeTag,
		loggerName: loggerName,
		coerce:     coerce,
		encode:     builder.encodeFunc,
	}, nil
}

// Format converts one record into a JSON document. The returned bytes
// hold a single JSON object with no trailing newline; framing is the
// transport's concern. The coercion pass guarantees every field value is
// encodable, so an error can only come from a custom encoder installed
// with WithEncodeFunc.
func (f *Formatter) Format(r Record) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := f.formatTo(buf, r); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// formatTo writes the document for r into buf, newline-terminated. The
// handler layer streams the buffer out in one write.
func (f *Formatter) formatTo(buf *bytes.Buffer, r Record) error {
	doc := f.buildDocument(r)
	if f.encode != nil {
		encoded, err := f.encode(doc)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		if len(encoded) == 0 || encoded[len(encoded)-1] != '\n' {
			buf.WriteByte('\n')
		}
		return nil
	}
	return encodeJSON(buf, doc)
}

// buildDocument runs the record pipeline: copy fields, fold a structured
// message, interpolate, extract the exception, claim the level and logger
// slots, strip bookkeeping keys, merge defaults, normalize, assemble.
func (f *Formatter) buildDocument(r Record) Document {
	fields := make(map[string]any, len(r.Fields)+4)
	for key, val := range r.Fields {
		fields[key] = val
	}

	message := ""
	switch msg := r.Message.(type) {
	case StructuredMessage:
		for key, val := range msg {
			fields[key] = val
		}
	case TemplateMessage:
		message = msg.Text()
	}

	if message != "" {
		message = logstash.ExpandMessage(message, fields)
	}

	exc := r.Exception
	if exc == nil {
		switch v := fields["exc_info"].(type) {
		case *ExceptionInfo:
			exc = v
		case ExceptionInfo:
			infoCopy := v
			exc = &infoCopy
		case error:
			exc = CaptureException(v)
		}
	}
	if lines := exc.Lines(); len(lines) > 0 {
		fields["exception"] = lines
	}

	levelName := r.LevelName
	if raw, ok := fields["levelname"]; ok {
		if s, isString := raw.(string); isString && levelName == "" {
			levelName = s
		}
		delete(fields, "levelname")
	}
	loggerName := r.LoggerName
	if raw, ok := fields["name"]; ok {
		if s, isString := raw.(string); isString && loggerName == "" {
			loggerName = s
		}
		delete(fields, "name")
	}
	if loggerName == "" {
		loggerName = f.loggerName
	}

	logstash.StripBookkeeping(fields)

	merged := logstash.MergeFields(f.extra, fields)
	logstash.NormalizeFields(merged, f.coerce)

	instant := r.Time
	if instant.IsZero() {
		instant = time.Now()
	}

	return Document{
		Message:    message,
		Timestamp:  instant.UTC().Format(TimestampLayout),
		SourceHost: f.sourceHost,
		Host:       f.hostIP,
		LogLevel:   levelName,
		WorkerGUID: loggerName,
		Type:       f.typeTag,
		Fields:     merged,
	}
}
