package importer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"rulebase/core"
	"rulebase/importer/sections"
)

const (
	// DefaultMaxCoreSections caps the number of sections turned into conditions
	DefaultMaxCoreSections = 15
	// longSectionThreshold is the body length above which a level 1-3 section is core
	longSectionThreshold = 100
	// segmentThreshold is the fallback body length above which the body is segmented
	segmentThreshold = 5000
)

// coreKeywords mark a section title as normative.
var coreKeywords = []string{
	"structure", "writing", "citation", "reference", "format", "data presentation",
	"checklist", "guideline", "rule", "principle", "requirement", "style", "convention",
	"best practice", "must",
	"结构", "写作", "引用", "格式", "数据", "检查", "规范", "原则", "要求",
}

var (
	guidelineTitles = []string{"guideline", "guidelines", "rules", "rule", "指导原则", "规则"}
	exampleTitles   = []string{"examples", "example", "示例", "样例"}
	descTitles      = []string{"description", "描述", "说明"}
)

// synthesisOptions tunes condition synthesis from markdown bodies.
type synthesisOptions struct {
	SegmentCap      int
	MaxCoreSections int
}

// bodyConditions derives conditions from a markdown body when the header supplies none.
// header may carry legacy single-condition keys (guideline, condition, priority, pattern).
func bodyConditions(header map[string]any, body string, opts synthesisOptions) []core.Condition {
	base := core.DefaultPriority
	if p, ok := asInt(header["priority"]); ok && p > 0 {
		base = p
	}
	list := sections.Parse(body)
	examples := parseExamples(list)

	// A named guideline section, or a guideline key in the header, gives one condition.
	guideline := asString(header["guideline"])
	if s, ok := sections.Find(list, guidelineTitles...); ok {
		guideline = s.Body
	}
	if guideline != "" {
		c := core.Condition{
			Condition: asString(header["condition"]),
			Guideline: guideline,
			Priority:  base,
			Pattern:   asString(header["pattern"]),
			Examples:  examples,
		}
		if c.Condition == "" {
			c.Condition = "main_rule"
		}
		return []core.Condition{c}
	}

	if conds := coreSectionConditions(list, base, opts.MaxCoreSections); len(conds) > 0 {
		if len(examples) > 0 {
			conds[0].Examples = examples
		}
		return conds
	}

	text := strings.TrimSpace(body)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= segmentThreshold {
		return []core.Condition{{Condition: "main_rule", Guideline: text, Priority: base, Examples: examples}}
	}
	chunks := sections.Segment(text, opts.SegmentCap)
	conds := make([]core.Condition, 0, len(chunks))
	for i, chunk := range chunks {
		conds = append(conds, core.Condition{
			Condition: fmt.Sprintf("main_rule_part_%d", i+1),
			Guideline: chunk,
			Priority:  base,
		})
	}
	return conds
}

// bodyDescription returns the text of a Description section, falling back to the lead
// paragraph before the first heading.
func bodyDescription(body string) string {
	list := sections.Parse(body)
	if s, ok := sections.Find(list, descTitles...); ok {
		return s.Body
	}
	if len(list) == 0 {
		return ""
	}
	return sections.Preamble(body)
}

type rankedSection struct {
	sections.Section
	rank  int
	order int
}

// coreSectionConditions keeps sections with a normative title or a long body at level
// 1-3, at most limit of them ranked keyword > long, and returns them in document order.
func coreSectionConditions(list []sections.Section, base, limit int) []core.Condition {
	if limit <= 0 {
		limit = DefaultMaxCoreSections
	}
	var picked []rankedSection
	for i, s := range list {
		switch {
		case hasCoreKeyword(s.Title):
			picked = append(picked, rankedSection{Section: s, rank: 0, order: i})
		case s.Level <= 3 && utf8.RuneCountInString(s.Body) > longSectionThreshold:
			picked = append(picked, rankedSection{Section: s, rank: 1, order: i})
		}
	}
	if len(picked) > limit {
		sort.SliceStable(picked, func(i, j int) bool { return picked[i].rank < picked[j].rank })
		picked = picked[:limit]
		sort.Slice(picked, func(i, j int) bool { return picked[i].order < picked[j].order })
	}

	conds := make([]core.Condition, 0, len(picked))
	seen := make(map[string]int)
	for _, s := range picked {
		key := conditionKey(s.Title)
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s_%d", key, n)
		}
		conds = append(conds, core.Condition{
			Condition: key,
			Guideline: fmt.Sprintf("**%s**\n\n%s", s.Title, s.Body),
			Priority:  clampPriority(base - (s.Level - 1)),
		})
	}
	return conds
}

func hasCoreKeyword(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range coreKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func clampPriority(p int) int {
	switch {
	case p < 1:
		return 1
	case p > 10:
		return 10
	}
	return p
}

// conditionKey turns a heading title into a snake_case key, keeping non-ASCII letters.
func conditionKey(title string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if b.Len() > 0 && !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	key := strings.TrimSuffix(b.String(), "_")
	if key == "" {
		return "section"
	}
	return key
}

// parseExamples reads good/bad code pairs from an Examples section.
func parseExamples(list []sections.Section) []core.Example {
	s, ok := sections.Find(list, exampleTitles...)
	if !ok {
		return nil
	}
	var (
		goods []string
		bads  []string
	)
	for _, block := range sections.CodeBlocks(s.Body) {
		label := strings.ToLower(block.Label)
		switch {
		case containsAny(label, "bad", "坏", "错误", "wrong", "avoid"):
			bads = append(bads, block.Code)
		case containsAny(label, "good", "好", "正确", "correct", "prefer"):
			goods = append(goods, block.Code)
		}
	}

	examples := make([]core.Example, 0, len(goods))
	for _, g := range goods {
		examples = append(examples, core.Example{Good: g, Explanation: "good example"})
	}
	for i, b := range bads {
		if i < len(examples) {
			examples[i].Bad = b
			continue
		}
		examples = append(examples, core.Example{Bad: b, Explanation: "bad example"})
	}
	if len(examples) == 0 {
		return nil
	}
	return examples
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
