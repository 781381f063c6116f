package rulesdb

import (
	"fmt"

	"rulebase/core"
)

// StatsFilter restricts which latest rule versions are counted. Empty fields impose no constraint.
type StatsFilter struct {
	Languages []string `json:"languages,omitempty"`
	Domains   []string `json:"domains,omitempty"`
	RuleTypes []string `json:"rule_types,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// AvailableTags holds the searchable keys of active rules. Keys are lower-cased.
type AvailableTags struct {
	Languages []string `json:"languages"`
	Domains   []string `json:"domains"`
	RuleTypes []string `json:"rule_types"`
	Tags      []string `json:"tags"`
}

// UsageStats summarizes rule usage counters.
type UsageStats struct {
	TotalUsage         int     `json:"total_usage"`
	AverageSuccessRate float64 `json:"average_success_rate"`
	MostUsedRule       string  `json:"most_used_rule"`
}

// Stats is an aggregate view of the rule corpus.
type Stats struct {
	TotalRules          int            `json:"total_rules"`
	TotalVersions       int            `json:"total_versions"`
	ActiveRules         int            `json:"active_rules"`
	Languages           int            `json:"languages"`
	Domains             int            `json:"domains"`
	RuleTypes           int            `json:"rule_types"`
	TotalTags           int            `json:"total_tags"`
	VersionDistribution map[string]int `json:"version_distribution"`
	RulesByType         map[string]int `json:"rules_by_type"`
	RulesByLanguage     map[string]int `json:"rules_by_language"`
	RulesByDomain       map[string]int `json:"rules_by_domain"`
	Usage               UsageStats     `json:"usage_stats"`
}

func (f StatsFilter) matches(r *core.Rule) bool {
	if len(f.Languages) > 0 && countFold(f.Languages, r.Languages) == 0 {
		return false
	}
	if len(f.Domains) > 0 && countFold(f.Domains, r.Domains) == 0 {
		return false
	}
	if len(f.RuleTypes) > 0 && !containsFoldString(f.RuleTypes, string(r.RuleType)) {
		return false
	}
	if len(f.Tags) > 0 && countFold(f.Tags, r.Tags) == 0 {
		return false
	}
	return true
}

// computeStats aggregates over the latest version of each rule. versionCounts holds
// the history length per identifier.
func computeStats(latest []*core.Rule, versionCounts map[string]int, filter StatsFilter) Stats {
	st := Stats{
		VersionDistribution: make(map[string]int),
		RulesByType:         make(map[string]int),
		RulesByLanguage:     make(map[string]int),
		RulesByDomain:       make(map[string]int),
	}
	for _, n := range versionCounts {
		st.TotalVersions += n
	}

	languages := make(map[string]struct{})
	domains := make(map[string]struct{})
	types := make(map[core.RuleType]struct{})
	tags := make(map[string]struct{})

	var (
		successSum   float64
		successCount int
		mostUsed     *core.Rule
	)

	for _, r := range latest {
		if !filter.matches(r) {
			continue
		}
		st.TotalRules++
		if r.Active {
			st.ActiveRules++
		}
		st.VersionDistribution[r.RuleID] = versionCounts[r.RuleID]
		st.RulesByType[string(r.RuleType)]++
		types[r.RuleType] = struct{}{}
		for _, l := range r.Languages {
			st.RulesByLanguage[l]++
			languages[l] = struct{}{}
		}
		for _, d := range r.Domains {
			st.RulesByDomain[d]++
			domains[d] = struct{}{}
		}
		for _, t := range r.Tags {
			tags[t] = struct{}{}
		}

		st.Usage.TotalUsage += r.UsageCount
		if r.UsageCount > 0 {
			successSum += r.SuccessRate
			successCount++
		}
		if mostUsed == nil || r.UsageCount > mostUsed.UsageCount {
			mostUsed = r
		}
	}

	st.Languages = len(languages)
	st.Domains = len(domains)
	st.RuleTypes = len(types)
	st.TotalTags = len(tags)
	if successCount > 0 {
		st.Usage.AverageSuccessRate = successSum / float64(successCount)
	}
	if mostUsed != nil && mostUsed.UsageCount > 0 {
		st.Usage.MostUsedRule = fmt.Sprintf("%s (%d uses)", mostUsed.Name, mostUsed.UsageCount)
	}
	return st
}
