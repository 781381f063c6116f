package util

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// MaxPatternLength is the longest condition pattern accepted
	MaxPatternLength = 500
	// DefaultMatchTimeout bounds a single match of a user-supplied pattern
	DefaultMatchTimeout = 100 * time.Millisecond
	maxAlternations     = 50
	maxRepetition       = 1000
	maxNesting          = 3
)

// ErrUnsafePattern is wrapped by every rejection from ValidatePattern.
var ErrUnsafePattern = errors.New("unsafe pattern")

var (
	nestedQuantifiers = []*regexp.Regexp{
		regexp.MustCompile(`\([^)]*[*+]\)[*+]`),
		regexp.MustCompile(`\([^)]*\?\)\?`),
		regexp.MustCompile(`\([^)]*\{[^}]*\}\)\{`),
	}
	repetitionRe = regexp.MustCompile(`\{(\d+)(?:,(\d*))?\}`)
)

// ValidatePattern rejects patterns likely to backtrack catastrophically, then checks
// that the pattern compiles.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: pattern is empty", ErrUnsafePattern)
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrUnsafePattern, len(pattern), MaxPatternLength)
	}
	for _, re := range nestedQuantifiers {
		if m := re.FindString(pattern); m != "" {
			return fmt.Errorf("%w: nested quantifier %q", ErrUnsafePattern, m)
		}
	}
	if n := strings.Count(pattern, "|"); n > maxAlternations {
		return fmt.Errorf("%w: %d alternations (max %d)", ErrUnsafePattern, n, maxAlternations)
	}
	for _, m := range repetitionRe.FindAllStringSubmatch(pattern, -1) {
		for _, bound := range m[1:] {
			if bound == "" {
				continue
			}
			if n, err := strconv.Atoi(bound); err == nil && n >= maxRepetition {
				return fmt.Errorf("%w: repetition %s (max %d)", ErrUnsafePattern, m[0], maxRepetition-1)
			}
		}
	}
	depth := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '(':
			depth++
			if depth > maxNesting {
				return fmt.Errorf("%w: group nesting deeper than %d", ErrUnsafePattern, maxNesting)
			}
		case ')':
			depth--
		}
	}

	if _, err := regexp2.Compile(pattern, regexp2.None); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

// CompilePattern validates and compiles pattern with a per-match timeout. A zero
// timeout uses DefaultMatchTimeout.
func CompilePattern(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return re, nil
}

// LineMatch is one match of a pattern, with 1-based line and column.
type LineMatch struct {
	Line   int
	Column int
	Text   string
}

// MatchLines reports the first match of re on every line of content. It stops at the
// first match timeout and returns the matches found so far with the error.
func MatchLines(re *regexp2.Regexp, content string) ([]LineMatch, error) {
	var out []LineMatch
	for i, line := range strings.Split(content, "\n") {
		m, err := re.FindStringMatch(line)
		if err != nil {
			return out, fmt.Errorf("line %d: %w", i+1, err)
		}
		if m != nil {
			out = append(out, LineMatch{Line: i + 1, Column: m.Index + 1, Text: m.String()})
		}
	}
	return out, nil
}
