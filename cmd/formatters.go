package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"rulebase/config"
	"rulebase/core"
	"rulebase/importer"
	"rulebase/rulesdb"
	"rulebase/validation"

	"github.com/fatih/color"
)

// renderImportResult prints the import summary and every failure
func renderImportResult(w io.Writer, result *importer.Result, quiet bool) {
	summary := result.Summary()

	if !quiet {
		for _, entry := range result.Log {
			switch entry.Status {
			case importer.StatusSuccess:
				successColor.Fprintf(w, "✓ %s", entry.File)
				fmt.Fprintf(w, " → %s\n", strings.Join(entry.RuleIDs, ", "))
			case importer.StatusSkipped:
				warningColor.Fprintf(w, "- %s: %s\n", entry.File, entry.Message)
			}
		}
	}
	for _, entry := range result.Failures() {
		errorColor.Fprintf(w, "✗ %s", entry.File)
		fmt.Fprintf(w, ": %s\n", entry.Message)
	}

	headerColor.Fprintf(w, "\nImport summary: ")
	fmt.Fprintf(w, "%d documents, %d succeeded, %d skipped, %d failed (%.0f%% success)\n",
		summary.Total, summary.Succeeded, summary.Skipped, summary.Failed, summary.SuccessRate*100)
}

// renderSearchResults displays search hits in a formatted table
func renderSearchResults(w io.Writer, results []rulesdb.SearchResult) {
	if len(results) == 0 {
		warningColor.Fprintln(w, "No matching rules")
		return
	}

	headerColor.Fprintln(w, "RESULTS")
	headerColor.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-20s %-32s %-10s %-8s %s\n", "Rule ID", "Name", "Type", "Score", "Matched")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, res := range results {
		fmt.Fprintf(w, "%-20s %-32s %-10s %-8.2f %s\n",
			truncate(res.Rule.RuleID, 20), truncate(res.Rule.Name, 32), res.Rule.RuleType,
			res.Score, strings.Join(res.MatchedDimensions, ","))
	}

	fmt.Fprintln(w, strings.Repeat("=", 100))
	infoColor.Fprintf(w, "%d results\n", len(results))
}

// renderRuleDetails displays one rule version
func renderRuleDetails(w io.Writer, rule *core.Rule, active bool) {
	headerColor.Fprintln(w, strings.Repeat("═", 63))
	headerColor.Fprintf(w, "  %s: %s\n", rule.RuleID, rule.Name)
	headerColor.Fprintln(w, strings.Repeat("═", 63))
	fmt.Fprintln(w)

	printSection(w, "Basic Information")
	printField(w, "Version", rule.Version)
	printField(w, "Author", rule.Author)
	printField(w, "Description", rule.Description)
	printField(w, "Type", string(rule.RuleType))
	printField(w, "Active", formatBool(active))
	printField(w, "Created", formatTime(rule.CreatedAt))
	printField(w, "Updated", formatTime(rule.UpdatedAt))
	fmt.Fprintln(w)

	printSection(w, "Scope")
	printField(w, "Languages", strings.Join(rule.Languages, ", "))
	printField(w, "Domains", strings.Join(rule.Domains, ", "))
	printField(w, "Tags", strings.Join(rule.Tags, ", "))
	contentTypes := make([]string, 0, len(rule.ContentTypes))
	for _, ct := range rule.ContentTypes {
		contentTypes = append(contentTypes, string(ct))
	}
	printField(w, "Content Types", strings.Join(contentTypes, ", "))
	if len(rule.AppliesTo.FilePatterns) > 0 {
		printField(w, "File Patterns", strings.Join(rule.AppliesTo.FilePatterns, ", "))
	}
	if len(rule.ConflictsWith) > 0 {
		printField(w, "Conflicts With", strings.Join(rule.ConflictsWith, ", "))
	}
	if len(rule.Overrides) > 0 {
		printField(w, "Overrides", strings.Join(rule.Overrides, ", "))
	}
	fmt.Fprintln(w)

	printSection(w, fmt.Sprintf("Conditions (%d)", len(rule.Rules)))
	for i, c := range rule.Rules {
		label := c.Condition
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		infoColor.Fprintf(w, "  [P%d] %s\n", c.Priority, label)
		for _, line := range strings.Split(strings.TrimSpace(c.Guideline), "\n") {
			fmt.Fprintf(w, "        %s\n", line)
		}
	}
	fmt.Fprintln(w)

	printSection(w, "Usage")
	printField(w, "Usage Count", fmt.Sprintf("%d", rule.UsageCount))
	printField(w, "Success Rate", fmt.Sprintf("%.0f%%", rule.SuccessRate*100))
}

// renderHistory lists versions oldest first
func renderHistory(w io.Writer, history []*core.Rule) {
	headerColor.Fprintf(w, "VERSIONS OF %s\n", history[0].RuleID)
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-12s %-8s %-20s %-20s %s\n", "Version", "Active", "Created", "Updated", "Conditions")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, r := range history {
		active := "No"
		if r.Active {
			active = "Yes"
		}
		fmt.Fprintf(w, "%-12s %-8s %-20s %-20s %d\n",
			r.Version, active, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), len(r.Rules))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

// renderAddResult prints the outcome of add
func renderAddResult(w io.Writer, result *rulesdb.AddResult) {
	switch {
	case result.Duplicate:
		warningColor.Fprintf(w, "Version %s of %s is already registered\n", result.Rule.Version, result.Rule.RuleID)
	case result.Activated:
		successColor.Fprintf(w, "✓ Stored %s version %s (active)\n", result.Rule.RuleID, result.Rule.Version)
	default:
		successColor.Fprintf(w, "✓ Stored %s version %s (inactive)\n", result.Rule.RuleID, result.Rule.Version)
	}
	for _, c := range result.Conflicts {
		warningColor.Fprintf(w, "  ! %s with %s: %s\n", c.Type, c.OtherRuleID, c.Description)
	}
}

// renderStats displays database statistics
func renderStats(w io.Writer, stats rulesdb.Stats) {
	printSection(w, "Rules")
	printField(w, "Total Rules", fmt.Sprintf("%d", stats.TotalRules))
	printField(w, "Total Versions", fmt.Sprintf("%d", stats.TotalVersions))
	printField(w, "Active Rules", fmt.Sprintf("%d", stats.ActiveRules))
	printField(w, "Languages", fmt.Sprintf("%d", stats.Languages))
	printField(w, "Domains", fmt.Sprintf("%d", stats.Domains))
	printField(w, "Rule Types", fmt.Sprintf("%d", stats.RuleTypes))
	printField(w, "Tags", fmt.Sprintf("%d", stats.TotalTags))
	fmt.Fprintln(w)

	renderCounts(w, "By Type", stats.RulesByType)
	renderCounts(w, "By Language", stats.RulesByLanguage)
	renderCounts(w, "By Domain", stats.RulesByDomain)

	printSection(w, "Usage")
	printField(w, "Total Usage", fmt.Sprintf("%d", stats.Usage.TotalUsage))
	printField(w, "Average Success", fmt.Sprintf("%.0f%%", stats.Usage.AverageSuccessRate*100))
	printField(w, "Most Used", stats.Usage.MostUsedRule)
}

// renderTags lists the searchable keys of active rules
func renderTags(w io.Writer, tags rulesdb.AvailableTags) {
	for _, group := range []struct {
		title  string
		values []string
	}{
		{"Languages", tags.Languages},
		{"Domains", tags.Domains},
		{"Rule Types", tags.RuleTypes},
		{"Tags", tags.Tags},
	} {
		printSection(w, group.title)
		if len(group.values) == 0 {
			fmt.Fprintln(w, "  (none)")
		} else {
			fmt.Fprintf(w, "  %s\n", strings.Join(group.values, ", "))
		}
		fmt.Fprintln(w)
	}
}

func renderCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	printSection(w, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printField(w, k, fmt.Sprintf("%d", counts[k]))
	}
	fmt.Fprintln(w)
}

// renderConflicts lists conflicts between active rules
func renderConflicts(w io.Writer, conflicts []rulesdb.Conflict) {
	if len(conflicts) == 0 {
		successColor.Fprintln(w, "No conflicts between active rules")
		return
	}
	for _, c := range conflicts {
		formatSeverity(c.Severity).Fprintf(w, "%-8s", c.Severity)
		fmt.Fprintf(w, " %-26s %s ↔ %s: %s\n", c.Type, c.RuleID, c.OtherRuleID, c.Description)
	}
	infoColor.Fprintf(w, "%d conflicts\n", len(conflicts))
}

// renderReport displays an external tool report
func renderReport(w io.Writer, report validation.Report) {
	for _, res := range report.Results {
		status := successColor.Sprint(res.Status)
		if res.Status != validation.StatusPassed {
			status = errorColor.Sprint(res.Status)
		}
		fmt.Fprintf(w, "%-12s %s (%s)\n", res.Tool, status, res.Duration.Round(time.Millisecond))
		if res.Error != "" {
			fmt.Fprintf(w, "  %s\n", res.Error)
		}
	}
	for _, issue := range report.Issues {
		formatSeverity(issue.Severity).Fprintf(w, "  %-8s", issue.Severity)
		fmt.Fprintf(w, " %s:%d:%d %s\n", issue.Tool, issue.Line, issue.Column, issue.Message)
	}
	headerColor.Fprintf(w, "Score: ")
	fmt.Fprintf(w, "%.0f/100 (%s)\n", report.Score, formatBool(report.Valid))
}

// renderConfig prints every setting in key order
func renderConfig(w io.Writer, cfg *config.Config) {
	for _, key := range config.Keys() {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		printField(w, key, value)
	}
}

// renderSettingKeys prints the override table grouped by category
func renderSettingKeys(w io.Writer, keys []string) {
	var last string
	for _, key := range keys {
		s, err := config.Schema(key)
		if err != nil {
			continue
		}
		if s.Category != last {
			if last != "" {
				fmt.Fprintln(w)
			}
			printSection(w, s.Category)
			last = s.Category
		}
		restart := ""
		if s.RestartRequired {
			restart = warningColor.Sprint(" (restart)")
		}
		fmt.Fprintf(w, "  %-28s %-9s %s%s\n", key, s.Type, s.Description, restart)
	}
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len([]rune(title))))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

// formatSeverity picks the color for a severity
func formatSeverity(s core.ValidationSeverity) *color.Color {
	switch s {
	case core.SeverityError, core.SeverityCritical:
		return errorColor
	case core.SeverityWarning:
		return warningColor
	default:
		return infoColor
	}
}

// formatBool returns a colored yes/no
func formatBool(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("Yes")
	}
	return color.New(color.FgRed).Sprint("No")
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("2006-01-02 15:04:05")
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
