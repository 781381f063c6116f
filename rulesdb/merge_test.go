package rulesdb

import (
	"testing"

	"rulebase/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRules(t *testing.T) {
	existing := newTestRule("CR-MG-1", "1.0.0")
	existing.Validation.Tools = []string{"flake8"}

	partial := &core.Rule{
		RuleID:      "CR-MG-1",
		Description: "  ",
		Languages:   []string{"python", "cython"},
		Rules: []core.Condition{
			{Condition: "main_rule", Guideline: "Keep functions under 30 lines", Priority: 9},
			{Condition: "naming", Guideline: "Use snake_case"},
		},
		Validation: core.ValidationSpec{Tools: []string{"black"}, Severity: core.SeverityError},
	}

	merged := MergeRules(existing, partial)

	assert.Equal(t, "Test rule CR-MG-1", merged.Description, "blank scalars do not overwrite")
	assert.Equal(t, []string{"python", "cython"}, merged.Languages)
	assert.Equal(t, []string{"flake8", "black"}, merged.Validation.Tools)
	assert.Equal(t, core.SeverityError, merged.Validation.Severity)

	require.Len(t, merged.Rules, 2)
	assert.Equal(t, "Keep functions under 30 lines", merged.Rules[0].Guideline)
	assert.Equal(t, 9, merged.Rules[0].Priority)
	assert.Equal(t, "naming", merged.Rules[1].Condition)

	// existing is untouched
	assert.Len(t, existing.Rules, 1)
	assert.Equal(t, "Keep functions small", existing.Rules[0].Guideline)
}

func TestMergeRules_KeepsIdentity(t *testing.T) {
	existing := newTestRule("CR-MG-2", "1.2.0")
	partial := &core.Rule{RuleID: "CR-MG-2", Author: core.DefaultAuthor, Name: "Renamed"}

	merged := MergeRules(existing, partial)
	assert.Equal(t, "CR-MG-2", merged.RuleID)
	assert.Equal(t, existing.CreatedAt, merged.CreatedAt)
	assert.Equal(t, existing.Author, merged.Author)
	assert.Equal(t, "Renamed", merged.Name)
}

func TestMergeRules_RepeatedExamplesAndKeylessConditions(t *testing.T) {
	ex := core.Example{Good: "return early", Bad: "else after return"}
	existing := newTestRule("CR-MG-3", "1.0.0")
	existing.Rules[0].Examples = []core.Example{ex}
	existing.Rules = append(existing.Rules, core.Condition{Guideline: "No globals", Priority: 5})

	partial := &core.Rule{
		RuleID: "CR-MG-3",
		Rules: []core.Condition{
			{Condition: "main_rule", Examples: []core.Example{ex, {Good: "guard clause"}}},
			{Guideline: "No globals"},
		},
	}
	merged := MergeRules(existing, partial)

	require.Len(t, merged.Rules, 2)
	assert.Equal(t, []core.Example{ex, {Good: "guard clause"}}, merged.Rules[0].Examples)
	assert.Len(t, existing.Rules[0].Examples, 1)
}
