package rulesdb

import (
	"strings"

	"rulebase/core"
)

// MergeRules folds a partial rule into a copy of existing, for append/continuation imports.
//
// Conditions are matched on their condition key: matches are updated in place, the rest
// appended. Set-valued fields are unioned. Scalars are overwritten only when the partial
// value is non-empty. Identity (rule_id, created_at) and bookkeeping fields stay with existing.
func MergeRules(existing, partial *core.Rule) *core.Rule {
	merged := existing.Clone()

	setIfNotEmpty(&merged.Name, partial.Name)
	setIfNotEmpty(&merged.Description, partial.Description)
	if partial.Author != "" && partial.Author != core.DefaultAuthor {
		merged.Author = partial.Author
	}
	if partial.RuleType != "" {
		merged.RuleType = partial.RuleType
	}

	merged.Languages = union(merged.Languages, partial.Languages)
	merged.Domains = union(merged.Domains, partial.Domains)
	merged.Tags = core.NormalizeTags(union(merged.Tags, partial.Tags))
	merged.ConflictsWith = union(merged.ConflictsWith, partial.ConflictsWith)
	merged.Overrides = union(merged.Overrides, partial.Overrides)
	merged.AppliesTo.FilePatterns = union(merged.AppliesTo.FilePatterns, partial.AppliesTo.FilePatterns)
	merged.AppliesTo.ProjectTypes = union(merged.AppliesTo.ProjectTypes, partial.AppliesTo.ProjectTypes)
	merged.AppliesTo.Contexts = union(merged.AppliesTo.Contexts, partial.AppliesTo.Contexts)

	for _, ct := range partial.ContentTypes {
		if !merged.HasContentType(ct) {
			merged.ContentTypes = append(merged.ContentTypes, ct)
		}
	}
	for _, tt := range partial.TaskTypes {
		if !merged.HasTaskType(tt) {
			merged.TaskTypes = append(merged.TaskTypes, tt)
		}
	}

	merged.Validation.Tools = union(merged.Validation.Tools, partial.Validation.Tools)
	if partial.Validation.Severity != "" {
		merged.Validation.Severity = partial.Validation.Severity
	}
	if partial.Validation.AutoFix {
		merged.Validation.AutoFix = true
	}
	if partial.Validation.Timeout > 0 {
		merged.Validation.Timeout = partial.Validation.Timeout
	}
	for k, v := range partial.Validation.CustomConfig {
		if merged.Validation.CustomConfig == nil {
			merged.Validation.CustomConfig = make(map[string]interface{})
		}
		merged.Validation.CustomConfig[k] = v
	}

	merged.Rules = mergeConditions(merged.Rules, partial.Rules)
	return merged
}

func mergeConditions(existing, incoming []core.Condition) []core.Condition {
	out := existing
	for _, nc := range incoming {
		key := strings.TrimSpace(nc.Condition)
		idx := -1
		for i := range out {
			if key != "" && strings.TrimSpace(out[i].Condition) == key {
				idx = i
				break
			}
			// keyless conditions only match an identical guideline
			if key == "" && strings.TrimSpace(out[i].Condition) == "" && out[i].Guideline == nc.Guideline {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, nc)
			continue
		}
		cur := &out[idx]
		setIfNotEmpty(&cur.Guideline, nc.Guideline)
		setIfNotEmpty(&cur.Pattern, nc.Pattern)
		if nc.Priority > 0 {
			cur.Priority = nc.Priority
		}
		for _, ex := range nc.Examples {
			if !containsExample(cur.Examples, ex) {
				cur.Examples = append(cur.Examples, ex)
			}
		}
	}
	return out
}

func containsExample(list []core.Example, ex core.Example) bool {
	for _, e := range list {
		if e == ex {
			return true
		}
	}
	return false
}

func setIfNotEmpty(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, v := range b {
		if !containsString(out, v) {
			out = append(out, v)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
