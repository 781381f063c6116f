package rulesdb

import (
	"fmt"
	"sort"
	"strings"

	"rulebase/core"
)

// ConflictType classifies an interaction between two rules.
type ConflictType string

const (
	ConflictExplicit       ConflictType = "explicit_conflict"
	ConflictOverride       ConflictType = "override"
	ConflictScopeOverlap   ConflictType = "scope_overlap"
	ConflictValidationTool ConflictType = "validation_tool_conflict"
)

// Conflict is one detected interaction between RuleID and OtherRuleID.
type Conflict struct {
	RuleID      string                  `json:"rule_id"`
	OtherRuleID string                  `json:"other_rule_id"`
	Type        ConflictType            `json:"type"`
	Severity    core.ValidationSeverity `json:"severity"`
	Description string                  `json:"description"`
}

// ConflictDetector classifies pairwise rule interactions.
type ConflictDetector struct{}

// NewConflictDetector creates a new conflict detector
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// Detect compares candidate against every rule in active, scanning forward from the candidate.
// Rules sharing the candidate's identifier are skipped.
func (d *ConflictDetector) Detect(candidate *core.Rule, active []*core.Rule) []Conflict {
	var out []Conflict
	for _, other := range active {
		if other == nil || other.RuleID == candidate.RuleID {
			continue
		}
		out = append(out, d.directed(candidate, other)...)
		out = append(out, d.symmetric(candidate, other)...)
	}
	return out
}

// DetectAll rescans the whole corpus. Directed classes (explicit conflict, override) are
// reported once per direction; symmetric classes once per unordered pair, attributed to the
// rule with the smaller identifier.
func (d *ConflictDetector) DetectAll(active []*core.Rule) []Conflict {
	rules := append([]*core.Rule(nil), active...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })

	var out []Conflict
	for i, a := range rules {
		for j, b := range rules {
			if i == j || a.RuleID == b.RuleID {
				continue
			}
			out = append(out, d.directed(a, b)...)
			if i < j {
				out = append(out, d.symmetric(a, b)...)
			}
		}
	}
	return out
}

// HasBlocking reports whether any conflict has error severity.
func HasBlocking(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == core.SeverityError || c.Severity == core.SeverityCritical {
			return true
		}
	}
	return false
}

// Blocking filters conflicts down to those with error severity.
func Blocking(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Severity == core.SeverityError || c.Severity == core.SeverityCritical {
			out = append(out, c)
		}
	}
	return out
}

func (d *ConflictDetector) directed(a, b *core.Rule) []Conflict {
	var out []Conflict
	if containsString(a.ConflictsWith, b.RuleID) {
		out = append(out, Conflict{
			RuleID:      a.RuleID,
			OtherRuleID: b.RuleID,
			Type:        ConflictExplicit,
			Severity:    core.SeverityError,
			Description: fmt.Sprintf("rule %s declares an explicit conflict with %s", a.RuleID, b.RuleID),
		})
	}
	if containsString(a.Overrides, b.RuleID) {
		out = append(out, Conflict{
			RuleID:      a.RuleID,
			OtherRuleID: b.RuleID,
			Type:        ConflictOverride,
			Severity:    core.SeverityWarning,
			Description: fmt.Sprintf("rule %s overrides %s", a.RuleID, b.RuleID),
		})
	}
	return out
}

func (d *ConflictDetector) symmetric(a, b *core.Rule) []Conflict {
	var out []Conflict
	if scopeOverlaps(a, b) {
		out = append(out, Conflict{
			RuleID:      a.RuleID,
			OtherRuleID: b.RuleID,
			Type:        ConflictScopeOverlap,
			Severity:    core.SeverityWarning,
			Description: fmt.Sprintf("rules %s and %s share language, domain and content type with rule type %s",
				a.RuleID, b.RuleID, a.RuleType),
		})
	}
	if tool, ok := toolSeverityMismatch(a, b); ok {
		out = append(out, Conflict{
			RuleID:      a.RuleID,
			OtherRuleID: b.RuleID,
			Type:        ConflictValidationTool,
			Severity:    core.SeverityInfo,
			Description: fmt.Sprintf("validation tool %s is used with severity %s by %s and %s by %s",
				tool, a.Validation.Severity, a.RuleID, b.Validation.Severity, b.RuleID),
		})
	}
	return out
}

func scopeOverlaps(a, b *core.Rule) bool {
	if a.RuleType != b.RuleType {
		return false
	}
	if !intersects(a.Languages, b.Languages) || !intersects(a.Domains, b.Domains) {
		return false
	}
	for _, ct := range a.ContentTypes {
		if b.HasContentType(ct) {
			return true
		}
	}
	return false
}

func toolSeverityMismatch(a, b *core.Rule) (string, bool) {
	if a.Validation.Severity == b.Validation.Severity {
		return "", false
	}
	for _, t := range a.Validation.Tools {
		if containsFold(b.Validation.Tools, t) {
			return t, true
		}
	}
	return "", false
}

// intersects compares case-insensitively, matching how the index buckets keys.
func intersects(a, b []string) bool {
	for _, x := range a {
		if containsFold(b, x) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// toSummaries converts conflicts for embedding in a core.ConflictError.
func toSummaries(conflicts []Conflict) []core.ConflictSummary {
	out := make([]core.ConflictSummary, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, core.ConflictSummary{
			Type:        string(c.Type),
			OtherRuleID: c.OtherRuleID,
			Description: c.Description,
		})
	}
	return out
}
