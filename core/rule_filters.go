package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 1000
)

// SearchFilter defines the query surface of the search engine.
// Empty dimensions impose no constraint.
type SearchFilter struct {
	Query        string   `json:"query"`
	Languages    []string `json:"languages"`
	Domains      []string `json:"domains"`
	Tags         []string `json:"tags"`
	ContentTypes []string `json:"content_types"`
	RuleTypes    []string `json:"rule_types"`
	TaskTypes    []string `json:"task_types"`
	// FilePath keeps only rules whose applies_to file patterns match it
	FilePath     string   `json:"file_path,omitempty"`
	Limit        int      `json:"limit" validate:"min=1,max=1000"`
}

// NewSearchFilter creates a filter with default values
func NewSearchFilter() *SearchFilter {
	return &SearchFilter{Limit: DefaultSearchLimit}
}

// Normalize applies the default limit and canonicalizes every dimension.
func (f *SearchFilter) Normalize() {
	if f.Limit == 0 {
		f.Limit = DefaultSearchLimit
	}
	f.Query = strings.TrimSpace(f.Query)
	f.Tags = NormalizeTags(f.Tags)
	f.Languages = NormalizeTags(f.Languages)
	f.Domains = NormalizeTags(f.Domains)
	f.ContentTypes = NormalizeTags(f.ContentTypes)
	f.RuleTypes = NormalizeTags(f.RuleTypes)
	f.TaskTypes = NormalizeTags(f.TaskTypes)
	f.FilePath = filepath.ToSlash(strings.TrimSpace(f.FilePath))
}

// Validate enforces the limit bounds.
func (f *SearchFilter) Validate() error {
	if err := getValidator().Struct(f); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return &SchemaError{Field: fieldPath(verrs[0].Namespace()),
				Reason: fmt.Sprintf("must be between 1 and %d", MaxSearchLimit)}
		}
		return err
	}
	return nil
}

// IsEmpty reports whether no dimension and no query is set.
func (f *SearchFilter) IsEmpty() bool {
	return f.Query == "" && len(f.Languages) == 0 && len(f.Domains) == 0 && len(f.Tags) == 0 &&
		len(f.ContentTypes) == 0 && len(f.RuleTypes) == 0 && len(f.TaskTypes) == 0 && f.FilePath == ""
}

// CacheKey returns a stable string for the normalized filter.
func (f *SearchFilter) CacheKey() string {
	parts := []string{
		"q=" + strings.ToLower(f.Query),
		"l=" + sortedJoin(f.Languages),
		"d=" + sortedJoin(f.Domains),
		"t=" + sortedJoin(f.Tags),
		"c=" + sortedJoin(f.ContentTypes),
		"r=" + sortedJoin(f.RuleTypes),
		"k=" + sortedJoin(f.TaskTypes),
		"f=" + f.FilePath,
		fmt.Sprintf("n=%d", f.Limit),
	}
	return strings.Join(parts, "|")
}

func sortedJoin(values []string) string {
	s := append([]string(nil), values...)
	sort.Strings(s)
	return strings.Join(s, ",")
}

// MatchesAppliesTo reports whether the rule is scoped to the given file path.
// A rule without file patterns applies everywhere.
func (r *Rule) MatchesAppliesTo(path string, match func(pattern, name string) bool) bool {
	if len(r.AppliesTo.FilePatterns) == 0 {
		return true
	}
	for _, p := range r.AppliesTo.FilePatterns {
		if match(p, path) {
			return true
		}
	}
	return false
}

// containsFold reports whether the lower-cased haystack contains needle (already lower-cased).
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

// MatchesQuery reports whether the lower-cased query appears in name, description or any guideline.
func (r *Rule) MatchesQuery(queryLower string) bool {
	if queryLower == "" {
		return true
	}
	if containsFold(r.Name, queryLower) || containsFold(r.Description, queryLower) {
		return true
	}
	for _, c := range r.Rules {
		if containsFold(c.Guideline, queryLower) {
			return true
		}
	}
	return false
}
