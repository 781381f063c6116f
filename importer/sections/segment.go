package sections

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSegmentCap is the target maximum chunk length in characters.
const DefaultSegmentCap = 2000

// Segment splits body into chunks of roughly limit characters. It breaks on level 2+
// headings first, then on blank-line paragraphs, and packs adjacent pieces greedily
// until the next one would pass the limit. A single paragraph longer than limit is
// broken on line ends and finally on whitespace.
//
// Concatenating the chunks reproduces body apart from the separators between pieces.
func Segment(body string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSegmentCap
	}
	body = strings.TrimSpace(normalize(body))
	if body == "" {
		return nil
	}
	if length(body) <= limit {
		return []string{body}
	}

	var pieces []string
	for _, block := range splitOnHeadings(body) {
		if length(block) <= limit {
			pieces = append(pieces, block)
			continue
		}
		for _, para := range splitParagraphs(block) {
			if length(para) <= limit {
				pieces = append(pieces, para)
				continue
			}
			pieces = append(pieces, splitLong(para, limit)...)
		}
	}
	return pack(pieces, limit)
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

// splitOnHeadings cuts body before every top-level heading of level 2 or deeper.
func splitOnHeadings(body string) []string {
	lines := strings.Split(body, "\n")
	var cuts []int
	for _, h := range scanHeadings(body) {
		if h.level >= 2 && h.start > 0 {
			cuts = append(cuts, h.start)
		}
	}
	if len(cuts) == 0 {
		return []string{body}
	}

	var out []string
	prev := 0
	for _, c := range append(cuts, len(lines)) {
		if part := strings.TrimSpace(strings.Join(lines[prev:c], "\n")); part != "" {
			out = append(out, part)
		}
		prev = c
	}
	return out
}

func splitParagraphs(block string) []string {
	var (
		out []string
		cur []string
	)
	flush := func() {
		if p := strings.TrimSpace(strings.Join(cur, "\n")); p != "" {
			out = append(out, p)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

// splitLong breaks an oversized paragraph on line ends, then on the last whitespace
// before limit. Text without whitespace is cut at limit runes.
func splitLong(para string, limit int) []string {
	var out []string
	for _, line := range strings.Split(para, "\n") {
		for length(line) > limit {
			runes := []rune(line)
			cut := limit
			for i := limit; i > limit/2; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
			out = append(out, strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace))
			line = strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace)
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return pack(out, limit)
}

func pack(pieces []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, p := range pieces {
		if cur.Len() > 0 && length(cur.String())+2+length(p) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
