package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rulebase/core"
)

// Loosely typed accessors over decoded YAML/JSON documents.

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// asStrings accepts a list or a comma-separated string.
func asStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := asString(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
	case int:
		return t != 0, true
	}
	return false, false
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

// first returns the value of the first key present in doc.
func first(doc map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ruleFromDocument builds a rule from a decoded document. Only keys present in doc are
// set, so the result can serve as a merge partial; defaults are applied later.
// Missing rule_id or name is a schema error.
func ruleFromDocument(doc map[string]any) (*core.Rule, error) {
	r := &core.Rule{
		RuleID: asString(doc["rule_id"]),
		Name:   asString(doc["name"]),
		Active: true,
	}
	if r.RuleID == "" {
		return nil, &core.SchemaError{Field: "rule_id", Reason: "is required"}
	}
	if r.Name == "" {
		return nil, &core.SchemaError{Field: "name", Reason: "is required"}
	}

	r.Description = asString(doc["description"])
	r.Version = asString(doc["version"])
	r.Author = asString(doc["author"])
	r.CreatedAt = asTime(doc["created_at"])
	r.UpdatedAt = asTime(doc["updated_at"])
	if v, ok := first(doc, "rule_type", "type"); ok {
		r.RuleType = core.ParseRuleType(asString(v))
	}
	r.Languages = asStrings(doc["languages"])
	r.Domains = asStrings(doc["domains"])
	r.Tags = asStrings(doc["tags"])
	if v, ok := doc["content_types"]; ok {
		r.ContentTypes = core.ParseContentTypes(asStrings(v))
	}
	r.TaskTypes = core.ParseTaskTypes(asStrings(doc["task_types"]))
	r.ConflictsWith = asStrings(doc["conflicts_with"])
	r.Overrides = asStrings(doc["overrides"])

	applies := asMap(doc["applies_to"])
	r.AppliesTo = core.AppliesTo{
		FilePatterns: asStrings(firstOf(applies, doc, "file_patterns")),
		ProjectTypes: asStrings(firstOf(applies, doc, "project_types")),
		Contexts:     asStrings(firstOf(applies, doc, "contexts")),
	}

	r.Validation = validationFromDocument(doc)

	if v, ok := asBool(doc["active"]); ok {
		r.Active = v
	}
	if v, ok := asInt(doc["usage_count"]); ok {
		r.UsageCount = v
	}
	if v, ok := asFloat(doc["success_rate"]); ok {
		r.SuccessRate = v
	}

	if list, ok := doc["rules"].([]any); ok && len(list) > 0 {
		for i, item := range list {
			r.Rules = append(r.Rules, conditionFromDocument(asMap(item), item, i))
		}
	} else if _, ok := first(doc, "guideline", "condition"); ok {
		c := conditionFromDocument(doc, nil, 0)
		r.Rules = []core.Condition{c}
	}
	return r, nil
}

// firstOf prefers the nested map's value and falls back to the top-level document.
func firstOf(nested, doc map[string]any, key string) any {
	if v, ok := nested[key]; ok {
		return v
	}
	return doc[key]
}

func validationFromDocument(doc map[string]any) core.ValidationSpec {
	nested := asMap(doc["validation"])
	var spec core.ValidationSpec

	if v, ok := first(nested, "tools"); ok {
		spec.Tools = asStrings(v)
	} else if v, ok := first(doc, "validation_tools", "tools"); ok {
		spec.Tools = asStrings(v)
	}
	if v := firstOf(nested, doc, "severity"); v != nil {
		spec.Severity = core.ParseSeverity(asString(v))
	}
	if v, ok := asBool(firstOf(nested, doc, "auto_fix")); ok {
		spec.AutoFix = v
	}
	if v, ok := asInt(firstOf(nested, doc, "timeout")); ok {
		spec.Timeout = v
	}
	if cfg := asMap(firstOf(nested, doc, "custom_config")); len(cfg) > 0 {
		spec.CustomConfig = cfg
	}
	return spec
}

// conditionFromDocument reads one condition. A bare string item becomes the guideline.
func conditionFromDocument(m map[string]any, raw any, index int) core.Condition {
	if m == nil {
		return core.Condition{
			Condition: fmt.Sprintf("rule_%d", index+1),
			Guideline: asString(raw),
		}
	}
	c := core.Condition{
		Condition: asString(m["condition"]),
		Guideline: asString(m["guideline"]),
		Pattern:   asString(m["pattern"]),
	}
	if c.Condition == "" {
		if index == 0 {
			c.Condition = "main_rule"
		} else {
			c.Condition = fmt.Sprintf("rule_%d", index+1)
		}
	}
	if p, ok := asInt(m["priority"]); ok {
		c.Priority = p
	}
	if list, ok := m["examples"].([]any); ok {
		for _, item := range list {
			if em := asMap(item); em != nil {
				c.Examples = append(c.Examples, core.Example{
					Good:        asString(em["good"]),
					Bad:         asString(em["bad"]),
					Explanation: asString(em["explanation"]),
				})
			} else if s := asString(item); s != "" {
				c.Examples = append(c.Examples, core.Example{Good: s})
			}
		}
	}
	return c
}
