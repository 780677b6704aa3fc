package tools

import "testing"

func TestRules(t *testing.T) {
	ie := FieldEquals("id", "internet-explorer")

	tests := []struct {
		name   string
		rule   Rule
		input  map[string]any
		issues int
	}{
		{"together none", RequiredTogether("url", "year"), map[string]any{}, 0},
		{"together all", RequiredTogether("url", "year"), map[string]any{"url": "a", "year": "1999"}, 0},
		{"together partial", RequiredTogether("url", "year"), map[string]any{"url": "a"}, 1},
		{"together blank counts as absent", RequiredTogether("url", "year"), map[string]any{"url": "a", "year": " "}, 1},
		{"allowed when holds", AllowedOnlyWhen(ie, "url"), map[string]any{"id": "internet-explorer", "url": "a"}, 0},
		{"allowed when not holds", AllowedOnlyWhen(ie, "url", "year"), map[string]any{"id": "paint", "url": "a", "year": "1"}, 2},
		{"required when", RequiredWhen(ie, "url"), map[string]any{"id": "internet-explorer"}, 1},
		{"required when not applicable", RequiredWhen(ie, "url"), map[string]any{"id": "paint"}, 0},
		{"any required", AnyRequiredWhen(ie, "a", "b"), map[string]any{"id": "internet-explorer", "b": true}, 0},
		{"any required missing", AnyRequiredWhen(ie, "a", "b"), map[string]any{"id": "internet-explorer"}, 1},
		{"forbidden", ForbiddenWhen(ie, "a"), map[string]any{"id": "internet-explorer", "a": 1.0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Check(tt.input); len(got) != tt.issues {
				t.Errorf("expected %d issues, got %d: %+v", tt.issues, len(got), got)
			}
		})
	}
}
