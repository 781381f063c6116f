package importer

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// SplitFrontmatter separates a leading YAML header fenced by --- lines from the body.
// A document without a header returns a nil header and the whole content as body.
// The closing fence may also be "...".
func SplitFrontmatter(content string) (map[string]any, string, error) {
	content = strings.ReplaceAll(strings.TrimPrefix(content, "\uFEFF"), "\r\n", "\n")
	trimmed := strings.TrimLeft(content, " \t\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return nil, content, nil
	}

	lines := strings.Split(trimmed, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if l := strings.TrimRight(lines[i], " \t"); l == "---" || l == "..." {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, content, nil
	}

	header := make(map[string]any)
	if raw := strings.Join(lines[1:end], "\n"); strings.TrimSpace(raw) != "" {
		if err := yaml.Unmarshal([]byte(raw), &header); err != nil {
			return nil, "", err
		}
	}
	body := strings.Join(lines[end+1:], "\n")
	return header, strings.TrimLeft(body, "\n"), nil
}
