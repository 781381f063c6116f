package rulesdb

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"rulebase/core"
	"rulebase/metrics"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Scoring weights.
const (
	weightPriority    = 0.1
	weightName        = 3.0
	weightDescription = 2.0
	weightGuideline   = 1.5
	weightTag         = 2.0
	weightLanguage    = 1.5
	weightDomain      = 1.5
	weightContentType = 1.0
)

// Matched dimension names reported on search results.
const (
	DimensionQuery        = "query"
	DimensionTags         = "tags"
	DimensionLanguages    = "languages"
	DimensionDomains      = "domains"
	DimensionContentTypes = "content_types"
	DimensionRuleTypes    = "rule_types"
	DimensionTaskTypes    = "task_types"
)

// SearchResult is a ranked rule plus the explanation of why it matched.
type SearchResult struct {
	Rule              *core.Rule `json:"rule"`
	Score             float64    `json:"score"`
	MatchedDimensions []string   `json:"matched_dimensions"`
	MatchedConditions []string   `json:"matched_conditions,omitempty"`
}

// Searcher ranks indexed rules against a filter.
type Searcher struct {
	index *Index
	cache *lru.Cache[string, []SearchResult]
}

// NewSearcher creates a searcher over index. A cacheSize of 0 disables result caching.
func NewSearcher(index *Index, cacheSize int) (*Searcher, error) {
	s := &Searcher{index: index}
	if cacheSize > 0 {
		cache, err := lru.New[string, []SearchResult](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create search cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Search returns up to filter.Limit ranked results. A filter matching nothing yields an empty slice.
func (s *Searcher) Search(filter core.SearchFilter) ([]SearchResult, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.SearchesTotal.Inc()

	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	g := s.index.snapshot()
	cacheKey := fmt.Sprintf("%d|%s", g.generation, filter.CacheKey())
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cloneResults(cached), nil
		}
	}

	results := rank(g, filter)
	if s.cache != nil {
		s.cache.Add(cacheKey, results)
	}
	return cloneResults(results), nil
}

// Purge drops all cached results.
func (s *Searcher) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func rank(g *indexGeneration, filter core.SearchFilter) []SearchResult {
	candidates := make(idSet, len(g.active))
	for id := range g.active {
		candidates.add(id)
	}
	if len(filter.Languages) > 0 {
		candidates = candidates.intersect(unionOf(g.languages, filter.Languages))
	}
	if len(filter.Domains) > 0 {
		candidates = candidates.intersect(unionOf(g.domains, filter.Domains))
	}
	if len(filter.RuleTypes) > 0 {
		candidates = candidates.intersect(unionOf(g.types, filter.RuleTypes))
	}
	if len(filter.Tags) > 0 {
		candidates = candidates.intersect(unionOf(g.tags, filter.Tags))
	}

	results := make([]SearchResult, 0, len(candidates))
	for id := range candidates {
		r := g.rules[id]
		if len(filter.ContentTypes) > 0 && countContentTypeMatches(r, filter.ContentTypes) == 0 {
			continue
		}
		if len(filter.TaskTypes) > 0 && !matchesAnyTaskType(r, filter.TaskTypes) {
			continue
		}
		if filter.FilePath != "" && !r.MatchesAppliesTo(filter.FilePath, MatchFilePattern) {
			continue
		}
		results = append(results, scoreRule(r, filter))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Rule.RuleID < results[j].Rule.RuleID
	})

	if len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}

// MatchFilePattern matches an applies_to pattern against a slash-separated path.
// Patterns without a slash match the base name, so "*.py" covers "src/app.py".
func MatchFilePattern(pattern, name string) bool {
	if !strings.Contains(pattern, "/") {
		name = path.Base(name)
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// ScoreRule computes the relevance of a single rule against filter.
func ScoreRule(r *core.Rule, filter core.SearchFilter) SearchResult {
	filter.Normalize()
	return scoreRule(r, filter)
}

func scoreRule(r *core.Rule, filter core.SearchFilter) SearchResult {
	res := SearchResult{Rule: r, MatchedDimensions: []string{}}
	score := r.AveragePriority() * weightPriority

	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		matched := false
		if strings.Contains(strings.ToLower(r.Name), q) {
			score += weightName
			matched = true
		}
		if strings.Contains(strings.ToLower(r.Description), q) {
			score += weightDescription
			matched = true
		}
		for _, c := range r.Rules {
			if strings.Contains(strings.ToLower(c.Guideline), q) {
				score += weightGuideline
				matched = true
				res.MatchedConditions = append(res.MatchedConditions, c.Condition)
			}
		}
		if matched {
			res.MatchedDimensions = append(res.MatchedDimensions, DimensionQuery)
		}
	}

	if n := countFold(filter.Tags, r.Tags); n > 0 {
		score += float64(n) * weightTag
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionTags)
	}
	if n := countFold(filter.Languages, r.Languages); n > 0 {
		score += float64(n) * weightLanguage
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionLanguages)
	}
	if n := countFold(filter.Domains, r.Domains); n > 0 {
		score += float64(n) * weightDomain
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionDomains)
	}
	if n := countContentTypeMatches(r, filter.ContentTypes); n > 0 {
		score += float64(n) * weightContentType
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionContentTypes)
	}
	if len(filter.RuleTypes) > 0 && containsFoldString(filter.RuleTypes, string(r.RuleType)) {
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionRuleTypes)
	}
	if len(filter.TaskTypes) > 0 && matchesAnyTaskType(r, filter.TaskTypes) {
		res.MatchedDimensions = append(res.MatchedDimensions, DimensionTaskTypes)
	}

	score *= 0.5 + 0.5*r.SuccessRate
	res.Score = score
	return res
}

// countFold counts filter values present in ruleValues, case-insensitively.
func countFold(filterValues, ruleValues []string) int {
	n := 0
	for _, f := range filterValues {
		if containsFoldString(ruleValues, f) {
			n++
		}
	}
	return n
}

func containsFoldString(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func countContentTypeMatches(r *core.Rule, wanted []string) int {
	n := 0
	for _, w := range wanted {
		if r.HasContentType(core.ContentType(strings.ToLower(w))) {
			n++
		}
	}
	return n
}

func matchesAnyTaskType(r *core.Rule, wanted []string) bool {
	for _, w := range wanted {
		if r.HasTaskType(core.TaskType(strings.ToLower(w))) {
			return true
		}
	}
	return false
}

func cloneResults(in []SearchResult) []SearchResult {
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = r
		out[i].Rule = r.Rule.Clone()
		out[i].MatchedDimensions = append([]string(nil), r.MatchedDimensions...)
		out[i].MatchedConditions = append([]string(nil), r.MatchedConditions...)
	}
	return out
}
