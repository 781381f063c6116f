package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		hint    string
		content string
		want    Format
	}{
		{"hint wins over extension", "rule.md", "yaml", "rule_id: CR-1", FormatYAML},
		{"hint alias", "x", "yml", "", FormatYAML},
		{"markdown extension", "rules/style.MD", "", "", FormatMarkdown},
		{"mdc extension", "a.mdc", "", "", FormatMarkdown},
		{"json extension", "a.json", "", "rule_id: x", FormatJSON},
		{"invalid hint falls through", "a.yml", "toml", "", FormatYAML},
		{"sniff header", "stdin", "", "\n---\nrule_id: CR-1\n---\nbody", FormatMarkdown},
		{"sniff header with BOM", "stdin", "", "\uFEFF---\r\nrule_id: CR-1\r\n---\r\n", FormatMarkdown},
		{"sniff json", "stdin", "", "  {\"rule_id\": \"CR-1\"}", FormatJSON},
		{"sniff default yaml", "stdin", "", "rule_id: CR-1\nname: x", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFormat(tt.path, tt.hint, tt.content))
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Markdown ")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, Format(""), f)

	_, err = ParseFormat("xml")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestHasSupportedExtension(t *testing.T) {
	assert.True(t, HasSupportedExtension("a/b/c.yaml"))
	assert.True(t, HasSupportedExtension("NOTES.Markdown"))
	assert.False(t, HasSupportedExtension("script.py"))
	assert.False(t, HasSupportedExtension("README"))
}

func TestSplitFrontmatter(t *testing.T) {
	header, body, err := SplitFrontmatter("---\nrule_id: CR-1\nname: Test\npriority: 7\n---\n\n# Title\ntext\n")
	require.NoError(t, err)
	assert.Equal(t, "CR-1", header["rule_id"])
	assert.Equal(t, 7, header["priority"])
	assert.Equal(t, "# Title\ntext\n", body)
}

func TestSplitFrontmatter_DotsClosingFence(t *testing.T) {
	header, body, err := SplitFrontmatter("---\nname: x\n...\nbody")
	require.NoError(t, err)
	assert.Equal(t, "x", header["name"])
	assert.Equal(t, "body", body)
}

func TestSplitFrontmatter_NoHeader(t *testing.T) {
	header, body, err := SplitFrontmatter("# Just markdown\n")
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Equal(t, "# Just markdown\n", body)
}

func TestSplitFrontmatter_UnclosedIsBody(t *testing.T) {
	content := "---\nname: x\nno closing fence"
	header, body, err := SplitFrontmatter(content)
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Equal(t, content, body)
}

func TestSplitFrontmatter_MalformedYAML(t *testing.T) {
	_, _, err := SplitFrontmatter("---\nname: [unclosed\n---\nbody")
	assert.Error(t, err)
}
