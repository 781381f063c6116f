package importer

import (
	"testing"

	"rulebase/core"

	"github.com/stretchr/testify/assert"
)

func TestFindTruncationMarker(t *testing.T) {
	tests := []struct {
		in     string
		marker string
		found  bool
	}{
		{"see above [...] and more", "[...]", true},
		{"前文 [省略] 后文", "[省略]", true},
		{"[… 200 more lines omitted]", "[… 200 more lines omitted]", true},
		{"[Remaining sections truncated for brevity]", "[Remaining sections truncated for brevity]", true},
		{"a [link](http://x) and [ ] checkbox", "", false},
		{"plain ... ellipsis", "", false},
		{"[Content omitted here]", "[Content omitted here]", true},
		{"fill in [see omitted fields] below", "", false},
		{"[fields truncated by the API are listed]", "", false},
		{"[moreover omitted]", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := FindTruncationMarker(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.marker, m)
		})
	}
}

func TestDetectTruncation_NestedMap(t *testing.T) {
	doc := map[string]any{
		"rule_id": "CR-T-1",
		"rules": []any{
			map[string]any{"guideline": "complete"},
			map[string]any{"guideline": "first half [...]"},
		},
	}
	marker, field, found := DetectTruncation(doc)
	assert.True(t, found)
	assert.Equal(t, "[...]", marker)
	assert.Equal(t, "rules[1].guideline", field)
}

func TestDetectTruncation_Struct(t *testing.T) {
	r := &core.Rule{
		RuleID: "CR-T-2",
		Rules:  []core.Condition{{Guideline: "ok", Examples: []core.Example{{Good: "x [truncated]"}}}},
	}
	_, field, found := DetectTruncation(r)
	assert.True(t, found)
	assert.Equal(t, "rules[0].examples[0].good", field)
}

func TestDetectTruncation_TopLevelString(t *testing.T) {
	_, field, found := DetectTruncation("[rest omitted]")
	assert.True(t, found)
	assert.Equal(t, "content", field)
}

func TestDetectTruncation_Clean(t *testing.T) {
	_, _, found := DetectTruncation(map[string]any{"a": []any{1, "b", nil, map[string]any{}}})
	assert.False(t, found)
}
