package validation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"rulebase/core"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed rule_schema.json
var ruleSchema []byte

// Schema modes accepted by NewSchemaValidator.
const (
	SchemaFull = "full"
	SchemaNone = "none"
)

// SchemaValidator checks a decoded rule document against the rule schema.
type SchemaValidator interface {
	ValidateDocument(doc map[string]any) error
}

// NoopValidator accepts every document.
type NoopValidator struct{}

// ValidateDocument always returns nil.
func (NoopValidator) ValidateDocument(map[string]any) error { return nil }

// JSONSchemaValidator validates documents with the embedded JSON schema.
type JSONSchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewJSONSchemaValidator compiles the embedded rule schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(ruleSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule schema: %w", err)
	}
	return &JSONSchemaValidator{schema: schema}, nil
}

// NewSchemaValidator returns the validator for a configured mode.
func NewSchemaValidator(mode string) (SchemaValidator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", SchemaFull:
		return NewJSONSchemaValidator()
	case SchemaNone:
		return NoopValidator{}, nil
	default:
		return nil, fmt.Errorf("unknown schema validation mode %q", mode)
	}
}

// ValidateDocument returns a *core.SchemaError naming the first violated field and
// listing every violation in its reason.
func (v *JSONSchemaValidator) ValidateDocument(doc map[string]any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &core.SchemaError{Field: "document", Reason: fmt.Sprintf("could not be validated: %v", err)}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &core.SchemaError{
		Field:  errs[0].Field(),
		Reason: "violates schema: " + strings.Join(msgs, "; "),
	}
}

// ValidateRule runs v over the JSON form of rule.
func ValidateRule(v SchemaValidator, rule *core.Rule) error {
	if v == nil {
		return nil
	}
	doc, err := RuleDocument(rule)
	if err != nil {
		return err
	}
	return v.ValidateDocument(doc)
}

// RuleDocument converts rule into the generic map form the schema sees.
func RuleDocument(rule *core.Rule) (map[string]any, error) {
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule %s: %w", rule.RuleID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule %s: %w", rule.RuleID, err)
	}
	return doc, nil
}
