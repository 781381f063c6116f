package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"rulebase/core"
	"rulebase/storage"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// newExportCmd creates the 'export' subcommand
func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every rule version as a msgpack snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			rules := app.DB.AllVersions()

			f, err := os.Create(output)
			if err != nil {
				return &core.IOError{Path: output, Op: "create", Err: err}
			}
			if err := storage.WriteSnapshot(f, rules); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return &core.IOError{Path: output, Op: "close", Err: err}
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]interface{}{
					"file":     output,
					"versions": len(rules),
				})
			}
			if !opts.quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Exported %d rule versions to %s\n", len(rules), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "rulebase-snapshot.msgpack", "Snapshot file to write")
	return cmd
}

// restoreSummary counts what a restore did
type restoreSummary struct {
	Stored     int      `json:"stored"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// newRestoreCmd creates the 'restore' subcommand
func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Load rule versions from a snapshot written by 'export'",
		Long: `Add every version in a snapshot, oldest first. Versions already present
with identical content are reported as duplicates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return &core.IOError{Path: args[0], Op: "open", Err: err}
			}
			snap, err := storage.ReadSnapshot(f)
			f.Close()
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

			sortVersions(snap.Rules)

			var summary restoreSummary
			for _, rule := range snap.Rules {
				result, err := app.DB.Add(ctx, rule)
				switch {
				case err != nil:
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s@%s: %v", rule.RuleID, rule.Version, err))
				case result.Duplicate:
					summary.Duplicates++
				default:
					summary.Stored++
				}
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return ctx.Err()
				}
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			successColor.Fprintf(out, "✓ Restored %d versions", summary.Stored)
			fmt.Fprintf(out, " (%d duplicates, %d failed)\n", summary.Duplicates, summary.Failed)
			for _, e := range summary.Errors {
				errorColor.Fprintf(out, "  ✗ %s\n", e)
			}
			if summary.Failed > 0 && summary.Stored == 0 && summary.Duplicates == 0 {
				return fmt.Errorf("restore failed for all %d versions", summary.Failed)
			}
			return nil
		},
	}
}

// sortVersions orders rules by id, then by ascending semantic version.
func sortVersions(rules []*core.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].RuleID != rules[j].RuleID {
			return rules[i].RuleID < rules[j].RuleID
		}
		return semver.Compare("v"+rules[i].Version, "v"+rules[j].Version) < 0
	})
}
