package importer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"rulebase/core"
	"rulebase/importer/sections"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSynthesis = synthesisOptions{SegmentCap: sections.DefaultSegmentCap, MaxCoreSections: DefaultMaxCoreSections}

func TestParseDocument_LooseYAML(t *testing.T) {
	doc, err := parseDocument("rule.yaml", FormatYAML,
		`{rule_id: "CR-X-1", name: "Line length", guideline: "Keep lines short", languages: ["python"]}`, testSynthesis)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)

	r := doc.Rules[0]
	assert.Equal(t, "CR-X-1", r.RuleID)
	assert.Equal(t, []string{"python"}, r.Languages)
	require.Len(t, r.Rules, 1)
	assert.Equal(t, "main_rule", r.Rules[0].Condition)
	assert.Equal(t, "Keep lines short", r.Rules[0].Guideline)
	// defaults are applied at commit time
	assert.Zero(t, r.Rules[0].Priority)
	assert.Equal(t, core.RuleType(""), r.RuleType)
	assert.True(t, r.Active)
}

func TestParseDocument_JSONList(t *testing.T) {
	content := `[
		{"rule_id": "CR-A", "name": "A", "rules": [{"guideline": "first"}, "second"]},
		{"rule_id": "CR-B", "name": "B", "type": "security", "content_types": "documentation, spreadsheets"}
	]`
	doc, err := parseDocument("batch.json", FormatJSON, content, testSynthesis)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 2)

	a := doc.Rules[0]
	require.Len(t, a.Rules, 2)
	assert.Equal(t, "main_rule", a.Rules[0].Condition)
	assert.Equal(t, "rule_2", a.Rules[1].Condition)
	assert.Equal(t, "second", a.Rules[1].Guideline)

	b := doc.Rules[1]
	assert.Equal(t, core.RuleTypeSecurity, b.RuleType)
	assert.Equal(t, []core.ContentType{core.ContentTypeDocumentation, core.ContentTypeCode}, b.ContentTypes)
}

func TestParseDocument_MissingRequiredField(t *testing.T) {
	_, err := parseDocument("bad.yaml", FormatYAML, "name: no id\nguideline: x\n", testSynthesis)

	var schemaErr *core.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "rule_id", schemaErr.Field)
	assert.Equal(t, "bad.yaml", schemaErr.Path)
}

func TestParseDocument_ListItemErrorNamesIndex(t *testing.T) {
	_, err := parseDocument("list.yaml", FormatYAML, "- rule_id: CR-1\n  name: ok\n- rule_id: CR-2\n", testSynthesis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	assert.Equal(t, "schema", core.ErrorKind(err))
}

func TestParseDocument_MalformedIsParseError(t *testing.T) {
	_, err := parseDocument("x.json", FormatJSON, `{"rule_id": `, testSynthesis)
	var parseErr *core.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "json", parseErr.Format)
}

func TestParseDocument_ScalarDocument(t *testing.T) {
	_, err := parseDocument("x.yaml", FormatYAML, "just a string", testSynthesis)
	assert.Equal(t, "parse", core.ErrorKind(err))
}

func TestParseDocument_MarkdownCoreSections(t *testing.T) {
	long := strings.Repeat("Details that run on for a while. ", 5)
	content := "---\nrule_id: CR-MD-1\nname: Writing\npriority: 9\ntags: [Docs]\n---\n" +
		"# Writing Style\nUse active voice.\n\n" +
		"## Background\n" + long + "\n\n" +
		"#### Trivia\nshort\n\n" +
		"## Citation Format\nCite sources inline.\n"

	doc, err := parseDocument("writing.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)
	r := doc.Rules[0]
	require.Len(t, r.Rules, 3)

	assert.Equal(t, "writing_style", r.Rules[0].Condition)
	assert.Equal(t, "**Writing Style**\n\nUse active voice.", r.Rules[0].Guideline)
	assert.Equal(t, 9, r.Rules[0].Priority)

	assert.Equal(t, "background", r.Rules[1].Condition)
	assert.Equal(t, 8, r.Rules[1].Priority)

	assert.Equal(t, "citation_format", r.Rules[2].Condition)
	assert.Equal(t, []string{"Docs"}, r.Tags)

	raw, ok := doc.Raw.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, raw["body"], "Use active voice.")
}

func TestParseDocument_MarkdownGuidelineSectionAndExamples(t *testing.T) {
	content := "---\nrule_id: CR-MD-2\nname: Naming\ncondition: naming\n---\n" +
		"## Description\nHow to name things.\n\n" +
		"## Guidelines\nUse descriptive names.\n\n" +
		"## Examples\n" +
		"Good:\n```python\ntotal_count = 1\n```\n" +
		"Bad:\n```python\ntc = 1\n```\n"

	doc, err := parseDocument("naming.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)
	r := doc.Rules[0]

	assert.Equal(t, "How to name things.", r.Description)
	require.Len(t, r.Rules, 1)
	c := r.Rules[0]
	assert.Equal(t, "naming", c.Condition)
	assert.Equal(t, "Use descriptive names.", c.Guideline)
	assert.Equal(t, core.DefaultPriority, c.Priority)
	require.Len(t, c.Examples, 1)
	assert.Equal(t, "total_count = 1", c.Examples[0].Good)
	assert.Equal(t, "tc = 1", c.Examples[0].Bad)
}

func TestParseDocument_MarkdownLeadParagraphIsDescription(t *testing.T) {
	content := "---\nrule_id: CR-MD-4\nname: Errors\n---\n" +
		"Wrap errors with context.\n\n" +
		"## Guidelines\nUse fmt.Errorf with %w.\n"

	doc, err := parseDocument("errors.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)
	r := doc.Rules[0]
	assert.Equal(t, "Wrap errors with context.", r.Description)
	require.Len(t, r.Rules, 1)
	assert.Equal(t, "Use fmt.Errorf with %w.", r.Rules[0].Guideline)
}

func TestParseDocument_MarkdownWholeBodyFallback(t *testing.T) {
	content := "---\nrule_id: CR-MD-3\nname: Short\n---\nBe concise.\n"
	doc, err := parseDocument("short.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)

	require.Len(t, doc.Rules[0].Rules, 1)
	assert.Equal(t, "main_rule", doc.Rules[0].Rules[0].Condition)
	assert.Equal(t, "Be concise.", doc.Rules[0].Rules[0].Guideline)
}

func TestParseDocument_LongBodyIsSegmented(t *testing.T) {
	var paras []string
	for i := 0; utf8.RuneCountInString(strings.Join(paras, "\n\n")) < 6000; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d. %s", i, strings.Repeat("lorem ipsum ", 20)))
	}
	body := strings.Join(paras, "\n\n")
	content := "---\nrule_id: CR-LONG-1\nname: Long\n---\n" + body

	doc, err := parseDocument("long.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)
	conds := doc.Rules[0].Rules
	require.Greater(t, len(conds), 1)

	longestPara := 0
	for _, p := range paras {
		longestPara = max(longestPara, utf8.RuneCountInString(p))
	}
	guidelines := make([]string, len(conds))
	for i, c := range conds {
		assert.Equal(t, fmt.Sprintf("main_rule_part_%d", i+1), c.Condition)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Guideline), sections.DefaultSegmentCap+longestPara)
		guidelines[i] = c.Guideline
	}
	assert.Equal(t, strings.Join(strings.Fields(body), " "), strings.Join(strings.Fields(strings.Join(guidelines, "\n\n")), " "))
}

func TestParseDocument_ExplicitRulesWinOverBody(t *testing.T) {
	content := "---\nrule_id: CR-MD-4\nname: Explicit\nrules:\n  - condition: c1\n    guideline: from header\n    priority: 3\n---\n# Style\nIgnored body section.\n"
	doc, err := parseDocument("explicit.md", FormatMarkdown, content, testSynthesis)
	require.NoError(t, err)

	require.Len(t, doc.Rules[0].Rules, 1)
	assert.Equal(t, "from header", doc.Rules[0].Rules[0].Guideline)
	assert.Equal(t, 3, doc.Rules[0].Rules[0].Priority)
}

func TestCoreSectionConditions_CapKeepsKeywordSections(t *testing.T) {
	var list []sections.Section
	long := strings.Repeat("x", 150)
	for i := 0; i < 5; i++ {
		list = append(list, sections.Section{Title: fmt.Sprintf("Long %d", i), Level: 2, Body: long})
	}
	list = append(list, sections.Section{Title: "Style Rules", Level: 3, Body: "short"})

	conds := coreSectionConditions(list, 8, 3)
	require.Len(t, conds, 3)
	// document order is kept after ranking
	assert.Equal(t, "long_0", conds[0].Condition)
	assert.Equal(t, "long_1", conds[1].Condition)
	assert.Equal(t, "style_rules", conds[2].Condition)
	assert.Equal(t, 6, conds[2].Priority)
}

func TestConditionKey(t *testing.T) {
	assert.Equal(t, "data_presentation", conditionKey("Data Presentation:"))
	assert.Equal(t, "引用格式", conditionKey("引用格式"))
	assert.Equal(t, "section", conditionKey("!!!"))
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, clampPriority(-3))
	assert.Equal(t, 10, clampPriority(12))
	assert.Equal(t, 5, clampPriority(5))
}
