// Package sections splits markdown bodies into headed sections and packs long
// content into bounded chunks.
//
// Headings are found with a CommonMark block parser, so ATX (`## Title`) and setext
// (`Title` underlined with `===` or `---`) headings are both recognized and lines
// inside fenced code blocks never start a section.
package sections

import (
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

// Section is a heading and the text beneath it up to the next heading of any level.
type Section struct {
	Title string
	Level int
	Body  string
	// Line is the 1-based line of the heading in the parsed body
	Line int
}

// CodeBlock is a fenced block together with the text that introduced it.
type CodeBlock struct {
	Label string
	Lang  string
	Code  string
}

type heading struct {
	title string
	level int
	start int // first line of the heading (0-based)
	end   int // first line after the heading
}

func newParser() *markdown.Markdown {
	return markdown.New(
		markdown.HTML(true),
		markdown.Linkify(false),
		markdown.Typographer(false),
	)
}

func normalize(body string) string {
	return strings.ReplaceAll(body, "\r\n", "\n")
}

// scanHeadings returns the top-level headings of src in document order.
func scanHeadings(src string) []heading {
	tokens := newParser().Parse([]byte(src))
	var out []heading
	for i, tok := range tokens {
		open, ok := tok.(*markdown.HeadingOpen)
		if !ok || open.Level() != 0 {
			continue
		}
		h := heading{level: open.HLevel, start: open.Map[0], end: open.Map[1]}
		if i+1 < len(tokens) {
			if inline, ok := tokens[i+1].(*markdown.Inline); ok {
				h.title = strings.TrimSpace(inline.Content)
			}
		}
		out = append(out, h)
	}
	return out
}

// Parse walks body and returns one Section per heading (levels 1-6). Text before the
// first heading is not a section. Sections whose trimmed body is empty are dropped.
func Parse(body string) []Section {
	body = normalize(body)
	lines := strings.Split(body, "\n")
	headings := scanHeadings(body)

	out := make([]Section, 0, len(headings))
	for i, h := range headings {
		stop := len(lines)
		if i+1 < len(headings) {
			stop = headings[i+1].start
		}
		start := h.end
		if start > stop {
			start = stop
		}
		text := strings.TrimSpace(strings.Join(lines[start:stop], "\n"))
		if text == "" {
			continue
		}
		out = append(out, Section{
			Title: h.title,
			Level: h.level,
			Body:  text,
			Line:  h.start + 1,
		})
	}
	return out
}

// Preamble returns the trimmed text before the first heading.
func Preamble(body string) string {
	body = normalize(body)
	headings := scanHeadings(body)
	if len(headings) == 0 {
		return strings.TrimSpace(body)
	}
	lines := strings.Split(body, "\n")
	return strings.TrimSpace(strings.Join(lines[:headings[0].start], "\n"))
}

// Find returns the first section whose title equals one of titles, ignoring case
// and a trailing colon.
func Find(list []Section, titles ...string) (Section, bool) {
	for _, s := range list {
		t := strings.TrimSuffix(strings.TrimSpace(s.Title), ":")
		for _, want := range titles {
			if strings.EqualFold(t, want) {
				return s, true
			}
		}
	}
	return Section{}, false
}

// CodeBlocks returns the fenced code blocks in body. Each block is labelled with the
// closest preceding paragraph or heading text.
func CodeBlocks(body string) []CodeBlock {
	tokens := newParser().Parse([]byte(normalize(body)))
	var (
		out   []CodeBlock
		label string
	)
	for _, tok := range tokens {
		switch t := tok.(type) {
		case *markdown.Inline:
			label = strings.TrimSpace(t.Content)
		case *markdown.Fence:
			lang := strings.TrimSpace(t.Params)
			if i := strings.IndexAny(lang, " \t"); i >= 0 {
				lang = lang[:i]
			}
			out = append(out, CodeBlock{
				Label: label,
				Lang:  lang,
				Code:  strings.TrimRight(t.Content, "\n"),
			})
		}
	}
	return out
}
