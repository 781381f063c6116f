package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRuleType(t *testing.T) {
	assert.Equal(t, RuleTypeSecurity, ParseRuleType("Security"))
	assert.Equal(t, RuleTypeFormat, ParseRuleType(" formatting "))
	assert.Equal(t, RuleTypeContent, ParseRuleType("unheard-of"))
	assert.Equal(t, RuleTypeContent, ParseRuleType(""))
}

func TestParseContentTypes(t *testing.T) {
	assert.Equal(t, []ContentType{ContentTypeCode}, ParseContentTypes(nil))
	assert.Equal(t,
		[]ContentType{ContentTypeDocumentation, ContentTypeDataInterface},
		ParseContentTypes([]string{"Docs", "data-interface", "documentation"}))
	assert.Equal(t, []ContentType{ContentTypeCode}, ParseContentTypes([]string{"hologram"}))
}

func TestParseTaskTypes(t *testing.T) {
	assert.Nil(t, ParseTaskTypes(nil))
	assert.Equal(t,
		[]TaskType{TaskTypeCodeReview, TaskTypeHTTPService, TaskTypeDevelopment},
		ParseTaskTypes([]string{"Code Review", "http-service", "knitting"}))
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityWarning, ParseSeverity("warn"))
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityWarning, ParseSeverity("loud"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, RuleTypeSemantic.IsValid())
	assert.False(t, RuleType("x").IsValid())
	assert.True(t, ContentTypeConfiguration.IsValid())
	assert.True(t, TaskTypeLLMMCP.IsValid())
	assert.False(t, TaskType("x").IsValid())
	assert.False(t, ValidationSeverity("").IsValid())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&TruncationDetectedError{Path: "a.md", Marker: "[...]"}, "truncation"},
		{fmt.Errorf("add: %w", &ConflictError{RuleID: "CR-1"}), "conflict"},
		{&DuplicateVersionError{RuleID: "CR-1", Version: "1.0.0"}, "duplicate"},
		{&SchemaError{Field: "name", Reason: "is required"}, "schema"},
		{&ParseError{Path: "a.yaml", Format: "yaml", Err: errors.New("bad")}, "parse"},
		{&IOError{Path: "a", Op: "read", Err: errors.New("denied")}, "io"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}
}

func TestTruncationErrorMentionsAppendMode(t *testing.T) {
	err := &TruncationDetectedError{Path: "rules.md", Marker: "[...]", Field: "body"}
	assert.Contains(t, err.Error(), "append mode")
	assert.Contains(t, err.Error(), "[...]")
}
