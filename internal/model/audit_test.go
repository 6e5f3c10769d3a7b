package model

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestComputeFieldDiff(t *testing.T) {
	before := map[string]any{"a": 1, "b": 2}
	after := map[string]any{"a": 1, "b": 3, "c": 4}

	diff := ComputeFieldDiff(before, after)
	if len(diff) != 2 {
		t.Fatalf("expected 2 changed fields, got %d", len(diff))
	}
	if _, ok := diff["a"]; ok {
		t.Fatalf("unchanged field must not appear in diff")
	}
	if diff["b"].Old != 2 || diff["b"].New != 3 {
		t.Fatalf("unexpected diff for b: %+v", diff["b"])
	}
	if diff["c"].Old != nil || diff["c"].New != 4 {
		t.Fatalf("field added on one side must diff against nil, got %+v", diff["c"])
	}
}

func TestComputeFieldDiffNestedValues(t *testing.T) {
	before := map[string]any{
		"legs":  []any{map[string]any{"symbol": "AAPL", "qty": 100}},
		"tags":  map[string]any{"desk": "equities"},
		"notes": "unchanged",
	}
	after := map[string]any{
		"legs":  []any{map[string]any{"symbol": "AAPL", "qty": 250}},
		"tags":  map[string]any{"desk": "equities"},
		"notes": "unchanged",
	}

	diff := ComputeFieldDiff(before, after)
	if len(diff) != 1 {
		t.Fatalf("expected only legs to differ, got %v", diff)
	}
	if _, ok := diff["legs"]; !ok {
		t.Fatalf("changed nested field missing from diff: %v", diff)
	}
}

func TestComputeFieldDiffRemovedKey(t *testing.T) {
	diff := ComputeFieldDiff(map[string]any{"x": "gone"}, map[string]any{})
	if diff["x"].Old != "gone" || diff["x"].New != nil {
		t.Fatalf("removed key must diff to nil, got %+v", diff["x"])
	}
}

func TestComputeFieldDiffNilInputs(t *testing.T) {
	if diff := ComputeFieldDiff(nil, map[string]any{"a": 1}); diff != nil {
		t.Fatalf("nil before must yield nil diff")
	}
	if diff := ComputeFieldDiff(map[string]any{"a": 1}, nil); diff != nil {
		t.Fatalf("nil after must yield nil diff")
	}
	if diff := ComputeFieldDiff(map[string]any{"a": 1}, map[string]any{"a": 1}); diff != nil {
		t.Fatalf("no changes must yield nil diff")
	}
}

func TestSanitizeDefaultsAndCaps(t *testing.T) {
	long := make([]byte, maxTextLen+100)
	for i := range long {
		long[i] = 'd'
	}
	event := &AuditEvent{Description: string(long), RequestMethod: "VERYLONGCUSTOMMETHOD"}
	event.Sanitize()

	if len(event.Description) != maxTextLen {
		t.Fatalf("description not capped: %d", len(event.Description))
	}
	if len(event.RequestMethod) != 16 {
		t.Fatalf("method not capped: %q", event.RequestMethod)
	}
	if event.Severity != SeverityInfo {
		t.Fatalf("severity not defaulted: %q", event.Severity)
	}
}

func TestSanitizeKeepsTruncatedTextValidUTF8(t *testing.T) {
	name := strings.Repeat("a", maxDisplayLen-1) + "é" // 2-byte rune straddles the cap
	event := &AuditEvent{ActorName: name}
	event.Sanitize()

	if len(event.ActorName) != maxDisplayLen-1 {
		t.Fatalf("expected truncation to back off to the rune boundary, got %d bytes", len(event.ActorName))
	}
	if !utf8.ValidString(event.ActorName) {
		t.Fatalf("truncated name is not valid UTF-8")
	}
}
