package sections

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ATXHeadings(t *testing.T) {
	body := "intro text\n\n# Title\n\nTop body\n\n## Sub ##\nSub body\n\n###### Deep\ndeep body\n"
	got := Parse(body)

	require.Len(t, got, 3)
	assert.Equal(t, Section{Title: "Title", Level: 1, Body: "Top body", Line: 3}, got[0])
	assert.Equal(t, "Sub", got[1].Title)
	assert.Equal(t, 2, got[1].Level)
	assert.Equal(t, "Sub body", got[1].Body)
	assert.Equal(t, 6, got[2].Level)
}

func TestParse_SetextHeadings(t *testing.T) {
	body := "Overview\n========\n\nfirst\n\nDetails\n-------\nsecond\n"
	got := Parse(body)

	require.Len(t, got, 2)
	assert.Equal(t, "Overview", got[0].Title)
	assert.Equal(t, 1, got[0].Level)
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "Details", got[1].Title)
	assert.Equal(t, 2, got[1].Level)
	assert.Equal(t, "second", got[1].Body)
}

func TestParse_IgnoresHashesInsideCodeFences(t *testing.T) {
	body := "## Usage\n\n```python\n# not a heading\nprint(1)\n```\n\n## Next\nmore\n"
	got := Parse(body)

	require.Len(t, got, 2)
	assert.Contains(t, got[0].Body, "# not a heading")
	assert.Equal(t, "Next", got[1].Title)
}

func TestParse_RequiresSpaceAfterHashes(t *testing.T) {
	got := Parse("#hashtag\n\n# Real\nbody\n")
	require.Len(t, got, 1)
	assert.Equal(t, "Real", got[0].Title)
}

func TestParse_DropsEmptySections(t *testing.T) {
	got := Parse("# Empty\n\n   \n# Full\ncontent\n")
	require.Len(t, got, 1)
	assert.Equal(t, "Full", got[0].Title)
}

func TestParse_CRLF(t *testing.T) {
	got := Parse("# One\r\nbody one\r\n# Two\r\nbody two\r\n")
	require.Len(t, got, 2)
	assert.Equal(t, "body one", got[0].Body)
}

func TestPreambleAndFind(t *testing.T) {
	body := "Lead paragraph.\n\n## Guidelines:\nDo this.\n\n## Examples\nSee below.\n"
	assert.Equal(t, "Lead paragraph.", Preamble(body))
	assert.Equal(t, "no headings", Preamble("  no headings \n"))

	list := Parse(body)
	s, ok := Find(list, "guideline", "guidelines")
	require.True(t, ok)
	assert.Equal(t, "Do this.", s.Body)

	_, ok = Find(list, "missing")
	assert.False(t, ok)
}

func TestCodeBlocks(t *testing.T) {
	body := "Good example:\n\n```python\nx = 1\n```\n\nBad example:\n\n```python\nX=1\n```\n"
	blocks := CodeBlocks(body)

	require.Len(t, blocks, 2)
	assert.Equal(t, "Good example:", blocks[0].Label)
	assert.Equal(t, "python", blocks[0].Lang)
	assert.Equal(t, "x = 1", blocks[0].Code)
	assert.Equal(t, "Bad example:", blocks[1].Label)
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSegment_ShortBodyIsSingleChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, Segment("  short  ", 100))
	assert.Nil(t, Segment("   ", 100))
}

func TestSegment_ParagraphsReconstructOriginal(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, strings.Repeat("word ", 29)+"end.")
	}
	body := strings.Join(paras, "\n\n")
	require.Greater(t, len(body), 5000)

	chunks := Segment(body, DefaultSegmentCap)

	require.Greater(t, len(chunks), 1)
	longestPara := len(paras[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), DefaultSegmentCap+longestPara)
	}
	assert.Equal(t, stripSpace(body), stripSpace(strings.Join(chunks, "")))
}

func TestSegment_SingleHugeParagraph(t *testing.T) {
	body := strings.Repeat("abcdefghi ", 600)
	chunks := Segment(body, DefaultSegmentCap)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), DefaultSegmentCap)
	}
	assert.Equal(t, stripSpace(body), stripSpace(strings.Join(chunks, "")))
}

func TestSegment_SplitsOnSecondaryHeadings(t *testing.T) {
	a := "## Part A\n" + strings.Repeat("a", 150)
	b := "## Part B\n" + strings.Repeat("b", 150)
	chunks := Segment(a+"\n\n"+b, 200)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], "## Part A"))
	assert.True(t, strings.HasPrefix(chunks[1], "## Part B"))
}

func TestSegment_MultibyteLengthCountsRunes(t *testing.T) {
	body := strings.Repeat("规则", 50)
	assert.Len(t, Segment(body, 100), 1)
}
