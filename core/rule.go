package core

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"rulebase/util"

	"github.com/go-playground/validator/v10"
)

const (
	// RuleIDPrefix is the prefix every rule identifier must carry
	RuleIDPrefix = "CR-"

	DefaultVersion  = "1.0.0"
	DefaultAuthor   = "Unknown"
	DefaultPriority = 8
	// DefaultToolTimeout is the per-tool validation timeout in seconds
	DefaultToolTimeout = 30
)

// Example is an illustrative good/bad pair attached to a condition.
type Example struct {
	Good        string `yaml:"good,omitempty" json:"good,omitempty"`
	Bad         string `yaml:"bad,omitempty" json:"bad,omitempty"`
	Explanation string `yaml:"explanation,omitempty" json:"explanation,omitempty"`
}

// Condition is one trigger/guideline pair within a rule.
type Condition struct {
	Condition string    `yaml:"condition" json:"condition"`
	Guideline string    `yaml:"guideline" json:"guideline" validate:"required"`
	Priority  int       `yaml:"priority" json:"priority" validate:"min=1,max=10"`
	Examples  []Example `yaml:"examples,omitempty" json:"examples,omitempty"`
	Pattern   string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// AppliesTo scopes a rule to files, project kinds and contexts.
type AppliesTo struct {
	FilePatterns []string `yaml:"file_patterns,omitempty" json:"file_patterns,omitempty"`
	ProjectTypes []string `yaml:"project_types,omitempty" json:"project_types,omitempty"`
	Contexts     []string `yaml:"contexts,omitempty" json:"contexts,omitempty"`
}

// ValidationSpec names the external tools that check a rule and how their findings are graded.
type ValidationSpec struct {
	Tools        []string               `yaml:"tools,omitempty" json:"tools,omitempty"`
	Severity     ValidationSeverity     `yaml:"severity" json:"severity"`
	AutoFix      bool                   `yaml:"auto_fix" json:"auto_fix"`
	Timeout      int                    `yaml:"timeout" json:"timeout" validate:"min=1"`
	CustomConfig map[string]interface{} `yaml:"custom_config,omitempty" json:"custom_config,omitempty"`
}

// Rule is a versioned guidance record.
//
// Field order is the canonical on-disk key order; the YAML file store relies on it.
type Rule struct {
	RuleID        string         `yaml:"rule_id" json:"rule_id" validate:"required,startswith=CR-"`
	Name          string         `yaml:"name" json:"name" validate:"required"`
	Description   string         `yaml:"description" json:"description"`
	Version       string         `yaml:"version" json:"version" validate:"required"`
	Author        string         `yaml:"author" json:"author"`
	CreatedAt     time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `yaml:"updated_at" json:"updated_at"`
	RuleType      RuleType       `yaml:"rule_type" json:"rule_type"`
	Languages     []string       `yaml:"languages" json:"languages"`
	Domains       []string       `yaml:"domains" json:"domains"`
	TaskTypes     []TaskType     `yaml:"task_types,omitempty" json:"task_types,omitempty"`
	ContentTypes  []ContentType  `yaml:"content_types" json:"content_types"`
	Tags          []string       `yaml:"tags" json:"tags"`
	Rules         []Condition    `yaml:"rules" json:"rules" validate:"min=1,dive"`
	AppliesTo     AppliesTo      `yaml:"applies_to" json:"applies_to"`
	ConflictsWith []string       `yaml:"conflicts_with" json:"conflicts_with"`
	Overrides     []string       `yaml:"overrides" json:"overrides"`
	Validation    ValidationSpec `yaml:"validation" json:"validation"`
	Active        bool           `yaml:"active" json:"active"`
	UsageCount    int            `yaml:"usage_count" json:"usage_count" validate:"min=0"`
	SuccessRate   float64        `yaml:"success_rate" json:"success_rate" validate:"gte=0,lte=1"`
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// getValidator returns the shared struct validator. Field names in errors use the json tag.
func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// NormalizeTags lower-cases and trims tags, dropping empties and duplicates.
func NormalizeTags(tags []string) []string {
	return normalizeSet(tags, true)
}

// NormalizeSet trims values and drops empties and duplicates, keeping first-seen order.
func NormalizeSet(values []string) []string {
	return normalizeSet(values, false)
}

func normalizeSet(values []string, lower bool) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ApplyDefaults fills unset fields with their documented defaults and normalizes sets.
// It does not touch Active; callers constructing rules by hand set it explicitly.
func (r *Rule) ApplyDefaults() {
	r.RuleID = strings.TrimSpace(r.RuleID)
	r.Name = strings.TrimSpace(r.Name)
	if strings.TrimSpace(r.Version) == "" {
		r.Version = DefaultVersion
	}
	if strings.TrimSpace(r.Author) == "" {
		r.Author = DefaultAuthor
	}
	if r.RuleType == "" {
		r.RuleType = RuleTypeContent
	}
	if len(r.ContentTypes) == 0 {
		r.ContentTypes = []ContentType{ContentTypeCode}
	}
	r.Tags = NormalizeTags(r.Tags)
	r.Languages = NormalizeSet(r.Languages)
	r.Domains = NormalizeSet(r.Domains)
	r.ConflictsWith = NormalizeSet(r.ConflictsWith)
	r.Overrides = NormalizeSet(r.Overrides)
	for i := range r.Rules {
		if r.Rules[i].Priority == 0 {
			r.Rules[i].Priority = DefaultPriority
		}
	}
	if r.Validation.Severity == "" {
		r.Validation.Severity = SeverityWarning
	}
	if r.Validation.Timeout == 0 {
		r.Validation.Timeout = DefaultToolTimeout
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
}

// Validate checks the rule invariants and returns a *SchemaError naming the first offending field.
func (r *Rule) Validate() error {
	if r == nil {
		return &SchemaError{Field: "rule", Reason: "is nil"}
	}

	if err := getValidator().Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &SchemaError{Field: fieldPath(fe.Namespace()), Reason: describeTag(fe)}
		}
		return &SchemaError{Field: "rule", Reason: err.Error()}
	}

	if !r.RuleType.IsValid() {
		return &SchemaError{Field: "rule_type", Reason: fmt.Sprintf("has unknown value %q", r.RuleType)}
	}
	for _, ct := range r.ContentTypes {
		if !ct.IsValid() {
			return &SchemaError{Field: "content_types", Reason: fmt.Sprintf("has unknown value %q", ct)}
		}
	}
	for _, tt := range r.TaskTypes {
		if !tt.IsValid() {
			return &SchemaError{Field: "task_types", Reason: fmt.Sprintf("has unknown value %q", tt)}
		}
	}
	if r.Validation.Severity != "" && !r.Validation.Severity.IsValid() {
		return &SchemaError{Field: "validation.severity", Reason: fmt.Sprintf("has unknown value %q", r.Validation.Severity)}
	}
	for i, c := range r.Rules {
		if strings.TrimSpace(c.Guideline) == "" {
			return &SchemaError{Field: fmt.Sprintf("rules[%d].guideline", i), Reason: "is required"}
		}
		if c.Pattern != "" {
			if err := util.ValidatePattern(c.Pattern); err != nil {
				return &SchemaError{Field: fmt.Sprintf("rules[%d].pattern", i), Reason: err.Error()}
			}
		}
	}
	return nil
}

// fieldPath turns "Rule.rules[0].priority" into "rules[0].priority".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gte", "lte":
		return "must be within [0, 1]"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// Key returns the storage key "rule_id@version".
func (r *Rule) Key() string {
	return r.RuleID + "@" + r.Version
}

// AveragePriority returns the mean priority across conditions, or 0 for a rule without conditions.
func (r *Rule) AveragePriority() float64 {
	if len(r.Rules) == 0 {
		return 0
	}
	total := 0
	for _, c := range r.Rules {
		total += c.Priority
	}
	return float64(total) / float64(len(r.Rules))
}

// Clone returns a deep copy so callers cannot mutate stored versions.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.Languages = cloneStrings(r.Languages)
	c.Domains = cloneStrings(r.Domains)
	c.Tags = cloneStrings(r.Tags)
	c.ConflictsWith = cloneStrings(r.ConflictsWith)
	c.Overrides = cloneStrings(r.Overrides)
	if r.TaskTypes != nil {
		c.TaskTypes = append([]TaskType(nil), r.TaskTypes...)
	}
	if r.ContentTypes != nil {
		c.ContentTypes = append([]ContentType(nil), r.ContentTypes...)
	}
	if r.Rules != nil {
		c.Rules = make([]Condition, len(r.Rules))
		for i, cond := range r.Rules {
			c.Rules[i] = cond
			if cond.Examples != nil {
				c.Rules[i].Examples = append([]Example(nil), cond.Examples...)
			}
		}
	}
	c.AppliesTo = AppliesTo{
		FilePatterns: cloneStrings(r.AppliesTo.FilePatterns),
		ProjectTypes: cloneStrings(r.AppliesTo.ProjectTypes),
		Contexts:     cloneStrings(r.AppliesTo.Contexts),
	}
	c.Validation.Tools = cloneStrings(r.Validation.Tools)
	if r.Validation.CustomConfig != nil {
		c.Validation.CustomConfig = make(map[string]interface{}, len(r.Validation.CustomConfig))
		for k, v := range r.Validation.CustomConfig {
			c.Validation.CustomConfig[k] = v
		}
	}
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// HasContentType reports whether the rule declares ct.
func (r *Rule) HasContentType(ct ContentType) bool {
	for _, c := range r.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// HasTaskType reports whether the rule declares tt.
func (r *Rule) HasTaskType(tt TaskType) bool {
	for _, t := range r.TaskTypes {
		if t == tt {
			return true
		}
	}
	return false
}
