package importer

import (
	"encoding/json"
	"errors"
	"fmt"

	"rulebase/core"

	"gopkg.in/yaml.v3"
)

// document is one decoded input and the rule partials built from it.
type document struct {
	Path   string
	Format Format
	// Raw is the decoded content scanned by the truncation guard
	Raw   any
	Rules []*core.Rule
}

// parseDocument decodes content in the given format. Rules are returned without
// defaults so they can be merged into existing records.
func parseDocument(path string, format Format, content string, opts synthesisOptions) (*document, error) {
	doc := &document{Path: path, Format: format}

	switch format {
	case FormatMarkdown:
		header, body, err := SplitFrontmatter(content)
		if err != nil {
			return nil, &core.ParseError{Path: path, Format: string(format), Err: err}
		}
		if header == nil {
			header = map[string]any{}
		}
		raw := make(map[string]any, len(header)+1)
		for k, v := range header {
			raw[k] = v
		}
		raw["body"] = body
		doc.Raw = raw

		rule, err := ruleFromDocument(header)
		if err != nil {
			return nil, withPath(err, path)
		}
		if len(rule.Rules) == 0 || (rule.Rules[0].Guideline == "" && len(rule.Rules) == 1) {
			rule.Rules = bodyConditions(header, body, opts)
		}
		if rule.Description == "" {
			rule.Description = bodyDescription(body)
		}
		doc.Rules = []*core.Rule{rule}

	case FormatYAML, FormatJSON:
		var raw any
		var err error
		if format == FormatJSON {
			err = json.Unmarshal([]byte(content), &raw)
		} else {
			err = yaml.Unmarshal([]byte(content), &raw)
		}
		if err != nil {
			return nil, &core.ParseError{Path: path, Format: string(format), Err: err}
		}
		doc.Raw = raw

		items, err := documentItems(raw)
		if err != nil {
			return nil, &core.ParseError{Path: path, Format: string(format), Err: err}
		}
		for i, item := range items {
			rule, err := ruleFromDocument(item)
			if err != nil {
				if len(items) > 1 {
					err = fmt.Errorf("item %d: %w", i, err)
				}
				return nil, withPath(err, path)
			}
			doc.Rules = append(doc.Rules, rule)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc, nil
}

// documentItems accepts a single mapping or a list of mappings.
func documentItems(raw any) ([]map[string]any, error) {
	if raw == nil {
		return nil, ErrEmptyDocument
	}
	if m := asMap(raw); m != nil {
		if len(m) == 0 {
			return nil, ErrEmptyDocument
		}
		return []map[string]any{m}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping or a list of mappings, got %T", raw)
	}
	var out []map[string]any
	for _, item := range list {
		if m := asMap(item); m != nil {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}
	return out, nil
}

func withPath(err error, path string) error {
	var schemaErr *core.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Path == "" {
		schemaErr.Path = path
	}
	return err
}
