package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rulebase/core"
	"rulebase/rulesdb"
	"rulebase/validation"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxRuleFileSize bounds files read by 'add'
const maxRuleFileSize = 10 * 1024 * 1024

// newSearchCmd creates the 'search' subcommand
func newSearchCmd(opts *rootOptions) *cobra.Command {
	var filter core.SearchFilter

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search active rules",
		Long: `Rank active rules by free-text query and dimension filters.

Filters on the same dimension are ORed; different dimensions are combined and
scored so that rules matching more of the request rank higher.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				filter.Query = args[0]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if filter.Limit == 0 {
				filter.Limit = app.Config.Search.DefaultLimit
			}
			if filter.Limit > app.Config.Search.MaxLimit {
				return fmt.Errorf("limit %d exceeds the maximum of %d", filter.Limit, app.Config.Search.MaxLimit)
			}

			results, err := app.DB.Search(ctx, filter)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				if results == nil {
					results = []rulesdb.SearchResult{}
				}
				return outputAsJSON(cmd.OutOrStdout(), results)
			}
			renderSearchResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&filter.Languages, "language", "l", nil, "Programming languages (repeatable or comma-separated)")
	cmd.Flags().StringSliceVarP(&filter.Domains, "domain", "d", nil, "Domains")
	cmd.Flags().StringSliceVarP(&filter.Tags, "tag", "t", nil, "Tags")
	cmd.Flags().StringSliceVar(&filter.ContentTypes, "content-type", nil, "Content types (code, documentation, ...)")
	cmd.Flags().StringSliceVar(&filter.RuleTypes, "rule-type", nil, "Rule types (coding, writing, ...)")
	cmd.Flags().StringSliceVar(&filter.TaskTypes, "task-type", nil, "Task types")
	cmd.Flags().StringVar(&filter.FilePath, "file", "", "Only rules whose file patterns match this path")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "Maximum results (default from config)")

	return cmd
}

// newShowCmd creates the 'show' subcommand
func newShowCmd(opts *rootOptions) *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show a rule",
		Long:  "Display the latest version of a rule, or a specific version with --version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			var rule *core.Rule
			if version != "" {
				rule, err = app.DB.GetVersion(args[0], version)
			} else {
				rule, err = app.DB.Get(args[0])
			}
			if err != nil {
				return err
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), rule)
			}
			renderRuleDetails(cmd.OutOrStdout(), rule, app.DB.IsActive(rule.RuleID))
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Show this version instead of the latest")
	return cmd
}

// newHistoryCmd creates the 'history' subcommand
func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <rule-id>",
		Short: "List every version of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			history := app.DB.History(args[0])
			if len(history) == 0 {
				return fmt.Errorf("%w: %s", core.ErrRuleNotFound, args[0])
			}
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), history)
			}
			renderHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
}

// newAddCmd creates the 'add' subcommand
func newAddCmd(opts *rootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Add a rule from a YAML or JSON rule file",
		Long: `Add a complete rule record, as written by the files backend or 'show --json'.

With --update the rule replaces the current latest version under a new version number.
Use 'import' for markdown or partial documents.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := readRuleFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			rule.ApplyDefaults()
			if err := validation.ValidateRule(app.Schema, rule); err != nil {
				return err
			}

			var result *rulesdb.AddResult
			if update {
				result, err = app.DB.Update(ctx, rule)
			} else {
				result, err = app.DB.Add(ctx, rule)
			}
			if err != nil {
				return err
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), result)
			}
			renderAddResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "Store as a new version of an existing rule")
	return cmd
}

// readRuleFile decodes a full rule record; .json files are JSON, anything else YAML.
func readRuleFile(path string) (*core.Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &core.IOError{Path: path, Op: "stat", Err: err}
	}
	if info.Size() > maxRuleFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), maxRuleFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.IOError{Path: path, Op: "read", Err: err}
	}

	// rules are active unless the file says otherwise
	rule := core.Rule{Active: true}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
		err = json.Unmarshal(data, &rule)
	} else {
		err = yaml.Unmarshal(data, &rule)
	}
	if err != nil {
		return nil, &core.ParseError{Path: path, Format: format, Err: err}
	}
	return &rule, nil
}

// newActivateCmd creates the 'activate' or 'deactivate' subcommand
func newActivateCmd(opts *rootOptions, activate bool) *cobra.Command {
	use, short := "activate <rule-id>", "Mark the latest version of a rule active"
	if !activate {
		use, short = "deactivate <rule-id>", "Remove a rule from search results"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if activate {
				err = app.DB.Activate(ctx, args[0])
			} else {
				err = app.DB.Deactivate(ctx, args[0])
			}
			if err != nil {
				return err
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]interface{}{
					"rule_id": args[0],
					"active":  activate,
				})
			}
			if !opts.quiet {
				state := "deactivated"
				if activate {
					state = "activated"
				}
				successColor.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", args[0], state)
			}
			return nil
		},
	}
}

// newStatsCmd creates the 'stats' subcommand
func newStatsCmd(opts *rootOptions) *cobra.Command {
	var filter rulesdb.StatsFilter

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			stats := app.DB.Stats(filter)
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), stats)
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&filter.Languages, "language", "l", nil, "Count only rules for these languages")
	cmd.Flags().StringSliceVarP(&filter.Domains, "domain", "d", nil, "Count only rules in these domains")
	cmd.Flags().StringSliceVar(&filter.RuleTypes, "rule-type", nil, "Count only these rule types")
	cmd.Flags().StringSliceVarP(&filter.Tags, "tag", "t", nil, "Count only rules with these tags")
	return cmd
}

// newTagsCmd creates the 'tags' subcommand
func newTagsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the languages, domains, rule types and tags of active rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			tags := app.DB.AvailableTags()
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), tags)
			}
			renderTags(cmd.OutOrStdout(), tags)
			return nil
		},
	}
}

// newConflictsCmd creates the 'conflicts' subcommand
func newConflictsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts between active rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			conflicts := app.DB.Conflicts()
			if opts.outputJSON {
				if conflicts == nil {
					conflicts = []rulesdb.Conflict{}
				}
				return outputAsJSON(cmd.OutOrStdout(), conflicts)
			}
			renderConflicts(cmd.OutOrStdout(), conflicts)
			return nil
		},
	}
}
