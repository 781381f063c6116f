package core

import "strings"

// RuleType classifies what aspect of content a rule governs.
type RuleType string

const (
	RuleTypeStyle       RuleType = "style"
	RuleTypeContent     RuleType = "content"
	RuleTypeFormat      RuleType = "format"
	RuleTypePerformance RuleType = "performance"
	RuleTypeSecurity    RuleType = "security"
	RuleTypeSemantic    RuleType = "semantic"
)

// ContentType is the kind of artifact a rule applies to.
type ContentType string

const (
	ContentTypeCode          ContentType = "code"
	ContentTypeDocumentation ContentType = "documentation"
	ContentTypeDataInterface ContentType = "data_interface"
	ContentTypeData          ContentType = "data"
	ContentTypeAlgorithm     ContentType = "algorithm"
	ContentTypeConfiguration ContentType = "configuration"
)

// TaskType is the kind of work a rule is meant to guide.
type TaskType string

const (
	TaskTypeDataAnalysis         TaskType = "data_analysis"
	TaskTypeVisualization        TaskType = "visualization"
	TaskTypeGUIDevelopment       TaskType = "gui_development"
	TaskTypeHTTPService          TaskType = "http_service"
	TaskTypeLLMMCP               TaskType = "llm_mcp"
	TaskTypeNumericalComputation TaskType = "numerical_computation"
	TaskTypePaperWriting         TaskType = "paper_writing"
	TaskTypeGrantApplication     TaskType = "grant_application"
	TaskTypeSoftwareDesign       TaskType = "software_design"
	TaskTypeCodeGeneration       TaskType = "code_generation"
	TaskTypeTesting              TaskType = "testing"
	TaskTypeDocumentation        TaskType = "documentation"
	TaskTypeRefactoring          TaskType = "refactoring"
	TaskTypeDebugging            TaskType = "debugging"
	TaskTypeOptimization         TaskType = "optimization"
	TaskTypeCodeReview           TaskType = "code_review"
	TaskTypeDevelopment          TaskType = "development"
)

// ValidationSeverity is the severity reported by a rule's validation tools.
type ValidationSeverity string

const (
	SeverityInfo     ValidationSeverity = "info"
	SeverityWarning  ValidationSeverity = "warning"
	SeverityError    ValidationSeverity = "error"
	SeverityCritical ValidationSeverity = "critical"
)

// Lookup tables used when coercing free-form strings from imported documents.
// Keys are lower-case with '-' and ' ' folded to '_'.
var (
	ruleTypeTable = map[string]RuleType{
		"style":       RuleTypeStyle,
		"content":     RuleTypeContent,
		"format":      RuleTypeFormat,
		"formatting":  RuleTypeFormat,
		"performance": RuleTypePerformance,
		"perf":        RuleTypePerformance,
		"security":    RuleTypeSecurity,
		"sec":         RuleTypeSecurity,
		"semantic":    RuleTypeSemantic,
	}

	contentTypeTable = map[string]ContentType{
		"code":           ContentTypeCode,
		"source":         ContentTypeCode,
		"documentation":  ContentTypeDocumentation,
		"docs":           ContentTypeDocumentation,
		"doc":            ContentTypeDocumentation,
		"data_interface": ContentTypeDataInterface,
		"api":            ContentTypeDataInterface,
		"interface":      ContentTypeDataInterface,
		"data":           ContentTypeData,
		"algorithm":      ContentTypeAlgorithm,
		"configuration":  ContentTypeConfiguration,
		"config":         ContentTypeConfiguration,
	}

	taskTypeTable = map[string]TaskType{
		"data_analysis":         TaskTypeDataAnalysis,
		"analysis":              TaskTypeDataAnalysis,
		"visualization":         TaskTypeVisualization,
		"gui_development":       TaskTypeGUIDevelopment,
		"gui":                   TaskTypeGUIDevelopment,
		"http_service":          TaskTypeHTTPService,
		"llm_mcp":               TaskTypeLLMMCP,
		"mcp":                   TaskTypeLLMMCP,
		"numerical_computation": TaskTypeNumericalComputation,
		"paper_writing":         TaskTypePaperWriting,
		"grant_application":     TaskTypeGrantApplication,
		"software_design":       TaskTypeSoftwareDesign,
		"code_generation":       TaskTypeCodeGeneration,
		"testing":               TaskTypeTesting,
		"documentation":         TaskTypeDocumentation,
		"refactoring":           TaskTypeRefactoring,
		"debugging":             TaskTypeDebugging,
		"optimization":          TaskTypeOptimization,
		"code_review":           TaskTypeCodeReview,
		"review":                TaskTypeCodeReview,
		"development":           TaskTypeDevelopment,
		"dev":                   TaskTypeDevelopment,
	}

	severityTable = map[string]ValidationSeverity{
		"info":     SeverityInfo,
		"warning":  SeverityWarning,
		"warn":     SeverityWarning,
		"error":    SeverityError,
		"critical": SeverityCritical,
	}
)

func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// ParseRuleType maps a free-form rule type onto the canonical enum, defaulting to content.
func ParseRuleType(s string) RuleType {
	if rt, ok := ruleTypeTable[foldKey(s)]; ok {
		return rt
	}
	return RuleTypeContent
}

// ParseContentTypes maps free-form content types onto the canonical enum.
// Unknown entries become code; the result is de-duplicated and never empty.
func ParseContentTypes(values []string) []ContentType {
	var out []ContentType
	seen := make(map[ContentType]bool)
	for _, v := range values {
		ct, ok := contentTypeTable[foldKey(v)]
		if !ok {
			ct = ContentTypeCode
		}
		if !seen[ct] {
			seen[ct] = true
			out = append(out, ct)
		}
	}
	if len(out) == 0 {
		return []ContentType{ContentTypeCode}
	}
	return out
}

// ParseTaskTypes maps free-form task types onto the canonical enum.
// Unknown entries become development; an empty input yields nil.
func ParseTaskTypes(values []string) []TaskType {
	var out []TaskType
	seen := make(map[TaskType]bool)
	for _, v := range values {
		tt, ok := taskTypeTable[foldKey(v)]
		if !ok {
			tt = TaskTypeDevelopment
		}
		if !seen[tt] {
			seen[tt] = true
			out = append(out, tt)
		}
	}
	return out
}

// ParseSeverity maps a free-form severity onto the canonical enum, defaulting to warning.
func ParseSeverity(s string) ValidationSeverity {
	if sev, ok := severityTable[foldKey(s)]; ok {
		return sev
	}
	return SeverityWarning
}

// IsValid reports whether rt is a known rule type.
func (rt RuleType) IsValid() bool {
	switch rt {
	case RuleTypeStyle, RuleTypeContent, RuleTypeFormat, RuleTypePerformance, RuleTypeSecurity, RuleTypeSemantic:
		return true
	}
	return false
}

// IsValid reports whether ct is a known content type.
func (ct ContentType) IsValid() bool {
	switch ct {
	case ContentTypeCode, ContentTypeDocumentation, ContentTypeDataInterface,
		ContentTypeData, ContentTypeAlgorithm, ContentTypeConfiguration:
		return true
	}
	return false
}

// IsValid reports whether tt is a known task type.
func (tt TaskType) IsValid() bool {
	_, ok := taskTypeTable[string(tt)]
	return ok
}

// IsValid reports whether s is a known severity.
func (s ValidationSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}
