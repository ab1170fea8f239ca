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

import "github.com/slogstash/slogstash/internal/logstash"

// ErrInvalidConfig is returned by New, NewHandler, and NewLogger when a
// JSON configuration payload cannot be parsed or carries a recognized key
// with a value of the wrong shape. Match it with errors.Is.
var ErrInvalidConfig = logstash.ErrInvalidConfig

// ErrInvalidTarget is returned when a log destination cannot be used, for
// example a SLOGSTASH_TARGET file entry with no path. Match it with
// errors.Is.
var ErrInvalidTarget = logstash.ErrInvalidTarget
