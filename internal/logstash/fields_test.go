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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestStripBookkeeping verifies that every bookkeeping key is removed
// while application fields survive.
func TestStripBookkeeping(t *testing.T) {
	fields := map[string]any{
		"user_id": 42,
		"event":   "login",
	}
	for key := range BookkeepingKeys {
		fields[key] = "noise"
	}

	StripBookkeeping(fields)

	want := map[string]any{
		"user_id": 42,
		"event":   "login",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("StripBookkeeping() left wrong fields (-want +got):\n%s", diff)
	}
}

// TestStripBookkeepingKeyCount guards the denylist against accidental
// edits. The set mirrors the bookkeeping attributes of the upstream
// record shape and has exactly sixteen members.
func TestStripBookkeepingKeyCount(t *testing.T) {
	if got, want := len(BookkeepingKeys), 16; got != want {
		t.Errorf("len(BookkeepingKeys) = %d, want %d", got, want)
	}
	for _, key := range []string{"msg", "message", "exc_info", "levelno", "threadName"} {
		if _, ok := BookkeepingKeys[key]; !ok {
			t.Errorf("BookkeepingKeys missing %q", key)
		}
	}
}

func TestMergeFields(t *testing.T) {
	testCases := []struct {
		name     string
		defaults map[string]any
		record   map[string]any
		want     map[string]any
	}{
		{
			name:     "Nil maps produce empty fields",
			defaults: nil,
			record:   nil,
			want:     map[string]any{},
		},
		{
			name:     "Defaults pass through when record is empty",
			defaults: map[string]any{"env": "prod", "dc": "us-east-1"},
			record:   nil,
			want:     map[string]any{"env": "prod", "dc": "us-east-1"},
		},
		{
			name:     "Record field wins over configured default",
			defaults: map[string]any{"env": "prod"},
			record:   map[string]any{"env": "staging"},
			want:     map[string]any{"env": "staging"},
		},
		{
			name: "Nested defaults object merges flat",
			defaults: map[string]any{
				"env":     "prod",
				"@fields": map[string]any{"team": "payments"},
			},
			record: map[string]any{"request_id": "abc"},
			want: map[string]any{
				"env":        "prod",
				"team":       "payments",
				"request_id": "abc",
			},
		},
		{
			name: "Nested defaults win over top-level defaults",
			defaults: map[string]any{
				"env":     "prod",
				"@fields": map[string]any{"env": "nested"},
			},
			record: nil,
			want:   map[string]any{"env": "nested"},
		},
		{
			name: "Record wins over nested defaults",
			defaults: map[string]any{
				"@fields": map[string]any{"env": "nested"},
			},
			record: map[string]any{"env": "record"},
			want:   map[string]any{"env": "record"},
		},
		{
			name:     "Non-object nested defaults entry is dropped",
			defaults: map[string]any{"@fields": "not an object", "env": "prod"},
			record:   nil,
			want:     map[string]any{"env": "prod"},
		},
		{
			name:     "Record field literally named @fields passes through",
			defaults: map[string]any{"env": "prod"},
			record:   map[string]any{"@fields": "kept"},
			want:     map[string]any{"env": "prod", "@fields": "kept"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeFields(tc.defaults, tc.record)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("MergeFields() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestMergeFieldsCopiesDefaults verifies that mutating merged output
// never leaks back into the configured defaults.
func TestMergeFieldsCopiesDefaults(t *testing.T) {
	defaults := map[string]any{
		"tags": map[string]any{"region": "eu"},
		"list": []any{"a", "b"},
	}

	merged := MergeFields(defaults, nil)
	merged["tags"].(map[string]any)["region"] = "mutated"
	merged["list"].([]any)[0] = "mutated"

	if got := defaults["tags"].(map[string]any)["region"]; got != "eu" {
		t.Errorf("defaults nested map mutated through merge output: region = %q, want %q", got, "eu")
	}
	if got := defaults["list"].([]any)[0]; got != "a" {
		t.Errorf("defaults nested slice mutated through merge output: [0] = %q, want %q", got, "a")
	}
}

func TestDeepCopyMap(t *testing.T) {
	if DeepCopyMap(nil) != nil {
		t.Error("DeepCopyMap(nil) != nil")
	}

	original := map[string]any{
		"scalar": 1,
		"nested": map[string]any{"inner": []any{map[string]any{"deep": true}}},
	}
	copied := DeepCopyMap(original)

	if diff := cmp.Diff(original, copied); diff != "" {
		t.Fatalf("DeepCopyMap() changed content (-want +got):\n%s", diff)
	}

	copied["nested"].(map[string]any)["inner"].([]any)[0].(map[string]any)["deep"] = false
	if got := original["nested"].(map[string]any)["inner"].([]any)[0].(map[string]any)["deep"]; got != true {
		t.Error("mutation of copy reached the original nested value")
	}
}

// TestDeepCopyValueLeavesTypedValuesAlone documents that only generic
// maps and slices are copied; typed containers alias the original.
func TestDeepCopyValueLeavesTypedValuesAlone(t *testing.T) {
	typed := map[string]string{"k": "v"}
	got, ok := DeepCopyValue(typed).(map[string]string)
	if !ok {
		t.Fatalf("DeepCopyValue(map[string]string) = %T, want map[string]string", DeepCopyValue(typed))
	}
	got["k"] = "changed"
	if typed["k"] != "changed" {
		t.Error("typed map was copied; expected aliasing")
	}
}
