package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"rulebase/core"
	"rulebase/metrics"
	"rulebase/util"
	"rulebase/util/goroutine"

	"go.uber.org/zap"
)

// DefaultToolTimeout bounds one external tool run when neither the tool nor the rule sets one
const DefaultToolTimeout = core.DefaultToolTimeout * time.Second

// Tool run outcomes, also used as the metrics status label.
const (
	StatusPassed  = "passed"
	StatusIssues  = "issues"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// ToolConfig describes one external checker. The content file path is appended to Args.
type ToolConfig struct {
	Name    string        `mapstructure:"name" json:"name"`
	Command string        `mapstructure:"command" json:"command"`
	Args    []string      `mapstructure:"args" json:"args,omitempty"`
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
}

// Issue is one finding reported by a tool.
type Issue struct {
	Tool     string                  `json:"tool"`
	Line     int                     `json:"line"`
	Column   int                     `json:"column,omitempty"`
	Code     string                  `json:"code,omitempty"`
	Message  string                  `json:"message"`
	Severity core.ValidationSeverity `json:"severity"`
}

// ToolResult is the outcome of one tool.
type ToolResult struct {
	Tool     string        `json:"tool"`
	Status   string        `json:"status"`
	Issues   []Issue       `json:"issues,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the tool could not produce a verdict.
func (r ToolResult) Failed() bool {
	return r.Status == StatusError || r.Status == StatusTimeout
}

// Report aggregates every tool run for one piece of content.
type Report struct {
	Language string        `json:"language"`
	Results  []ToolResult  `json:"results"`
	Issues   []Issue       `json:"issues"`
	Score    float64       `json:"score"`
	Valid    bool          `json:"valid"`
	Duration time.Duration `json:"duration"`
}

// ToolRunner runs external checkers over content written to a temporary file.
type ToolRunner struct {
	// Tools lists the configured checkers per language
	Tools          map[string][]ToolConfig
	DefaultTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewToolRunner creates a runner. A zero defaultTimeout uses DefaultToolTimeout.
func NewToolRunner(tools map[string][]ToolConfig, defaultTimeout time.Duration, logger *zap.SugaredLogger) *ToolRunner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultToolTimeout
	}
	normalized := make(map[string][]ToolConfig, len(tools))
	for lang, list := range tools {
		normalized[strings.ToLower(lang)] = list
	}
	return &ToolRunner{Tools: normalized, DefaultTimeout: defaultTimeout, logger: logger}
}

// DefaultTools mirrors the checkers a stock installation expects on PATH.
func DefaultTools() map[string][]ToolConfig {
	return map[string][]ToolConfig{
		"python": {
			{Name: "flake8", Command: "flake8", Enabled: true},
			{Name: "pylint", Command: "pylint", Args: []string{"--output-format=parseable", "--score=n"}, Enabled: true},
			{Name: "black", Command: "black", Args: []string{"--check", "--quiet"}, Enabled: false},
			{Name: "mypy", Command: "mypy", Args: []string{"--no-error-summary"}, Enabled: false},
		},
		"javascript": {
			{Name: "eslint", Command: "eslint", Args: []string{"--format", "unix"}, Enabled: true},
		},
		"typescript": {
			{Name: "eslint", Command: "eslint", Args: []string{"--format", "unix"}, Enabled: true},
		},
		"markdown": {
			{Name: "markdownlint", Command: "markdownlint", Enabled: true},
		},
	}
}

var fileExtensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"markdown":   ".md",
	"go":         ".go",
	"json":       ".json",
	"yaml":       ".yaml",
}

// Run executes every enabled tool concurrently, each under its own timeout, and
// aggregates their findings. A tool that fails or times out is reported as such
// without affecting the others.
func (tr *ToolRunner) Run(ctx context.Context, content, language string, tools []ToolConfig) Report {
	start := time.Now()
	report := Report{Language: language}

	var enabled []ToolConfig
	for _, t := range tools {
		if t.Enabled && t.Command != "" {
			enabled = append(enabled, t)
		}
	}
	if len(enabled) == 0 {
		report.Score = 100
		report.Valid = true
		report.Results = []ToolResult{}
		report.Issues = []Issue{}
		return report
	}

	path, err := writeTempContent(content, language)
	if err != nil {
		tr.logger.Errorw("Failed to stage content for validation", "language", language, "error", err)
		for _, t := range enabled {
			report.Results = append(report.Results, ToolResult{Tool: t.Name, Status: StatusError, Error: err.Error()})
		}
		report.Issues = []Issue{}
		report.Duration = time.Since(start)
		return report
	}
	defer os.Remove(path)

	results := make([]ToolResult, len(enabled))
	var wg sync.WaitGroup
	for i, t := range enabled {
		wg.Add(1)
		go func(i int, t ToolConfig) {
			defer wg.Done()
			defer goroutine.RecoverWith("validation-tool:"+t.Name, tr.logger, func(v any) {
				results[i] = ToolResult{Tool: t.Name, Status: StatusError, Error: fmt.Sprintf("panic: %v", v)}
			})
			results[i] = tr.runTool(ctx, t, path)
		}(i, t)
	}
	wg.Wait()

	report.Results = results
	report.Issues = []Issue{}
	for _, r := range results {
		metrics.ValidationToolRuns.WithLabelValues(r.Tool, r.Status).Inc()
		report.Issues = append(report.Issues, r.Issues...)
	}
	report.Score = Score(report.Issues)
	report.Valid = len(report.Issues) == 0
	report.Duration = time.Since(start)
	return report
}

// RunForRule runs the configured tools for language that the rule names, using the
// rule's timeout for tools that do not set their own.
func (tr *ToolRunner) RunForRule(ctx context.Context, rule *core.Rule, content, language string) Report {
	configured := tr.Tools[strings.ToLower(language)]
	var selected []ToolConfig
	for _, t := range configured {
		if len(rule.Validation.Tools) > 0 && !containsFold(rule.Validation.Tools, t.Name) {
			continue
		}
		if t.Timeout == 0 && rule.Validation.Timeout > 0 {
			t.Timeout = time.Duration(rule.Validation.Timeout) * time.Second
		}
		selected = append(selected, t)
	}
	report := tr.Run(ctx, content, language, selected)

	if len(rule.Validation.Tools) > 0 && !containsFold(rule.Validation.Tools, PatternTool) {
		return report
	}
	if res, ok := tr.runPatterns(rule, content); ok {
		metrics.ValidationToolRuns.WithLabelValues(res.Tool, res.Status).Inc()
		report.Results = append(report.Results, res)
		report.Issues = append(report.Issues, res.Issues...)
		report.Score = Score(report.Issues)
		report.Valid = len(report.Issues) == 0
	}
	return report
}

// PatternTool names the built-in check that matches each condition's pattern against
// the content.
const PatternTool = "pattern"

// runPatterns reports a match of any condition pattern as an issue carrying the
// condition's guideline. ok is false when the rule has no patterns.
func (tr *ToolRunner) runPatterns(rule *core.Rule, content string) (ToolResult, bool) {
	start := time.Now()
	result := ToolResult{Tool: PatternTool, Status: StatusPassed}
	severity := rule.Validation.Severity
	if severity == "" {
		severity = core.SeverityWarning
	}

	found := false
	for _, c := range rule.Rules {
		if c.Pattern == "" {
			continue
		}
		found = true
		re, err := util.CompilePattern(c.Pattern, 0)
		if err != nil {
			result.Status = StatusError
			result.Error = err.Error()
			tr.logger.Warnw("Skipping unusable condition pattern", "rule_id", rule.RuleID, "error", err)
			continue
		}
		matches, err := util.MatchLines(re, content)
		if err != nil {
			result.Status = StatusTimeout
			result.Error = err.Error()
			tr.logger.Warnw("Condition pattern timed out", "rule_id", rule.RuleID, "error", err)
		}
		for _, m := range matches {
			result.Issues = append(result.Issues, Issue{
				Tool:     PatternTool,
				Line:     m.Line,
				Column:   m.Column,
				Code:     rule.RuleID,
				Message:  strings.TrimSpace(c.Guideline),
				Severity: severity,
			})
		}
	}
	if len(result.Issues) > 0 && result.Status == StatusPassed {
		result.Status = StatusIssues
	}
	result.Duration = time.Since(start)
	return result, found
}

func (tr *ToolRunner) runTool(ctx context.Context, t ToolConfig, path string) ToolResult {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = tr.DefaultTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	args := append(append([]string{}, t.Args...), path)
	cmd := exec.CommandContext(toolCtx, t.Command, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	result := ToolResult{Tool: t.Name, Duration: time.Since(start)}

	if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
		result.Status = StatusTimeout
		result.Error = fmt.Sprintf("timed out after %s", timeout)
		tr.logger.Warnw("Validation tool timed out", "tool", t.Name, "timeout", timeout)
		return result
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		result.Status = StatusError
		result.Error = err.Error()
		tr.logger.Warnw("Validation tool failed to start", "tool", t.Name, "error", err)
		return result
	}

	result.Issues = ParseToolOutput(t.Name, string(out))
	switch {
	case len(result.Issues) > 0:
		result.Status = StatusIssues
	case err != nil:
		// non-zero exit without parseable findings
		result.Status = StatusError
		result.Error = strings.TrimSpace(string(out))
		if result.Error == "" {
			result.Error = err.Error()
		}
	default:
		result.Status = StatusPassed
	}
	return result
}

func writeTempContent(content, language string) (string, error) {
	ext, ok := fileExtensions[strings.ToLower(language)]
	if !ok {
		ext = ".txt"
	}
	f, err := os.CreateTemp("", "rulebase-validate-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// issueLine matches "file:line[:col]: message".
var issueLine = regexp.MustCompile(`^([^:\n]+):(\d+):(?:(\d+):)?\s*(.+)$`)

var issueCode = regexp.MustCompile(`^([A-Z]{1,3})(\d{3,4})\b:?\s*`)

// ParseToolOutput extracts issues from checker output in the common
// "file:line:col: message" shape. Lines that do not match are ignored.
func ParseToolOutput(tool, output string) []Issue {
	var issues []Issue
	for _, line := range strings.Split(output, "\n") {
		m := issueLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		issue := Issue{Tool: tool, Message: strings.TrimSpace(m[4])}
		issue.Line, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			issue.Column, _ = strconv.Atoi(m[3])
		}
		if cm := issueCode.FindStringSubmatch(issue.Message); cm != nil {
			issue.Code = cm[1] + cm[2]
			issue.Message = strings.TrimSpace(issue.Message[len(cm[0]):])
		}
		issue.Severity = classify(issue.Code, issue.Message)
		issues = append(issues, issue)
	}
	return issues
}

func classify(code, message string) core.ValidationSeverity {
	if code != "" {
		switch code[0] {
		case 'E', 'F':
			return core.SeverityError
		case 'W':
			return core.SeverityWarning
		default:
			return core.SeverityInfo
		}
	}
	lower := strings.ToLower(message)
	switch {
	case strings.HasPrefix(lower, "error"), strings.Contains(lower, "[error"):
		return core.SeverityError
	case strings.HasPrefix(lower, "note"), strings.HasPrefix(lower, "info"):
		return core.SeverityInfo
	default:
		return core.SeverityWarning
	}
}

// Score is 100 minus 10 per error, 5 per warning and 1 per info issue, floored at 0.
func Score(issues []Issue) float64 {
	score := 100.0
	for _, issue := range issues {
		switch issue.Severity {
		case core.SeverityError, core.SeverityCritical:
			score -= 10
		case core.SeverityWarning:
			score -= 5
		case core.SeverityInfo:
			score -= 1
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
