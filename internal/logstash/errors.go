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

import "errors"

// ErrInvalidConfig indicates that a JSON configuration payload supplied at
// construction could not be parsed, or carried a recognized key with a
// value of the wrong shape.
var ErrInvalidConfig = errors.New("logstash: invalid formatter configuration")

// ErrInvalidTarget indicates that a log output target (for example the
// value of SLOGSTASH_TARGET) was malformed or named no usable destination.
var ErrInvalidTarget = errors.New("logstash: invalid log target")
