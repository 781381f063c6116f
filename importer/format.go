package importer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the syntax a rule document is written in.
type Format string

const (
	// FormatMarkdown is a markdown body with a YAML header between --- lines
	FormatMarkdown Format = "markdown"
	// FormatYAML is loose structured syntax
	FormatYAML Format = "yaml"
	// FormatJSON is strict structured syntax
	FormatJSON Format = "json"
)

// SupportedExtensions lists the file extensions picked up from directories.
var SupportedExtensions = []string{".md", ".markdown", ".mdc", ".yaml", ".yml", ".json"}

var extensionFormats = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdc":      FormatMarkdown,
	".yaml":     FormatYAML,
	".yml":      FormatYAML,
	".json":     FormatJSON,
}

// ParseFormat maps a user-supplied hint onto a Format. An empty hint returns "" and no error.
func ParseFormat(hint string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "":
		return "", nil
	case "markdown", "md", "mdc":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, hint)
	}
}

// HasSupportedExtension reports whether path ends in one of SupportedExtensions.
func HasSupportedExtension(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ResolveFormat picks the format for a document: a valid hint wins, then the file
// extension, then content sniffing. A header fenced by --- lines means markdown, a
// leading '{' means JSON, anything else is treated as YAML.
func ResolveFormat(path, hint, content string) Format {
	if f, err := ParseFormat(hint); err == nil && f != "" {
		return f
	}
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return sniffFormat(content)
}

func sniffFormat(content string) Format {
	trimmed := strings.TrimLeft(strings.TrimPrefix(content, "\uFEFF"), " \t\r\n")
	switch {
	case strings.HasPrefix(trimmed, "---\n"), strings.HasPrefix(trimmed, "---\r\n"):
		return FormatMarkdown
	case strings.HasPrefix(trimmed, "{"):
		return FormatJSON
	default:
		return FormatYAML
	}
}
