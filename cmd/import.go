package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"rulebase/bootstrap"
	"rulebase/importer"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newImportCmd creates the 'import' subcommand
func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		recursive    bool
		format       string
		merge        bool
		continuation bool
		saveLog      bool
		logPath      string
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Import rules from files or directories",
		Long: `Import rules from markdown, YAML or JSON documents.

Directories are scanned for supported extensions (.md .markdown .mdc .yaml .yml .json).
Documents containing truncation markers such as "[...]" are rejected unless
--continuation is given, in which case they are merged into the existing rule.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := importer.ParseFormat(format); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			var s *spinner.Spinner
			if showProgress && !opts.outputJSON && !opts.quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = " Importing rules..."
				s.Start()
			}

			result, err := app.Importer.Import(ctx, importer.Request{
				Paths:        args,
				Recursive:    recursive,
				FormatHint:   format,
				Merge:        merge,
				Continuation: continuation,
			})

			if s != nil {
				s.Stop()
			}
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if saveLog || logPath != "" {
				path := logPath
				if path == "" {
					path = filepath.Join(app.Config.DataPaths.LogDir,
						fmt.Sprintf("import_%s.json", time.Now().UTC().Format("20060102T150405Z")))
				}
				if err := result.SaveLog(path); err != nil {
					return fmt.Errorf("failed to save import log: %w", err)
				}
				if !opts.outputJSON && !opts.quiet {
					infoColor.Fprintf(cmd.ErrOrStderr(), "Import log written to %s\n", path)
				}
			}

			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), struct {
					Summary importer.Summary    `json:"summary"`
					Log     []importer.LogEntry `json:"log"`
				}{result.Summary(), result.Log})
			}
			renderImportResult(cmd.OutOrStdout(), result, opts.quiet)

			if summary := result.Summary(); summary.Total > 0 && summary.Failed == summary.Total {
				return fmt.Errorf("all %d documents failed to import", summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().StringVar(&format, "format", "", "Force the document format (markdown, yaml, json)")
	cmd.Flags().BoolVar(&merge, "merge", false, "Merge into existing rules instead of adding new versions")
	cmd.Flags().BoolVar(&continuation, "continuation", false, "Treat documents as continuations of partial rules")
	cmd.Flags().BoolVar(&saveLog, "save-log", false, "Write the import log under the configured log directory")
	cmd.Flags().StringVar(&logPath, "log-file", "", "Write the import log to this path")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress spinner")

	return cmd
}

// newWatchCmd creates the 'watch' subcommand
func newWatchCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-import rule files as they change",
		Long:  "Watch a directory tree and merge every written or created rule file into the database until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := bootstrap.SignalContext(cmd.Context())
			defer stop()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			out := cmd.OutOrStdout()
			if !opts.quiet {
				infoColor.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", args[0])
			}
			return app.Importer.Watch(ctx, args[0], importer.WatchOptions{
				Debounce: debounce,
				OnImport: func(path string, result *importer.Result, err error) {
					if err != nil {
						errorColor.Fprintf(out, "✗ %s: %v\n", path, err)
						return
					}
					if opts.outputJSON {
						_ = outputAsJSON(out, result.Log)
						return
					}
					renderImportResult(out, result, opts.quiet)
				},
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", importer.DefaultDebounce, "Quiet period before a changed file is re-imported")
	return cmd
}
