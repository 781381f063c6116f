package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rulebase/core"

	"github.com/spf13/cobra"
)

// extensionLanguages maps file extensions to the language keys of the tool table
var extensionLanguages = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".go":  "go",
	".rs":  "rust",
	".md":  "markdown",
}

// newValidateCmd creates the 'validate' subcommand
func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		language string
		ruleID   string
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Run external checkers over a file",
		Long: `Run the configured validation tools for the file's language and report a score.

With --rule, the tools named by that rule's validation section are used and its
timeout applies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return &core.IOError{Path: args[0], Op: "read", Err: err}
			}
			if language == "" {
				language = extensionLanguages[strings.ToLower(filepath.Ext(args[0]))]
			}
			if language == "" {
				return fmt.Errorf("cannot infer the language of %s; pass --language", args[0])
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			rule := &core.Rule{}
			if ruleID != "" {
				if rule, err = app.DB.Get(ruleID); err != nil {
					return err
				}
			}

			report := app.Tools.RunForRule(ctx, rule, string(content), language)
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), report)
			}
			renderReport(cmd.OutOrStdout(), report)
			if !report.Valid {
				return fmt.Errorf("validation failed with score %.0f", report.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language of the file (default: inferred from the extension)")
	cmd.Flags().StringVar(&ruleID, "rule", "", "Use the tools and timeout of this rule")
	return cmd
}
