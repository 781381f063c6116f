package cmd

import (
	"time"

	"rulebase/bootstrap"
	"rulebase/importer"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand
func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		watchDir string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the rule database over HTTP on the configured host and port until
interrupted. With --watch, rule files under the directory are re-imported as they change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := bootstrap.SignalContext(cmd.Context())
			defer stop()

			app, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			return app.Serve(ctx, bootstrap.ServeOptions{WatchDir: watchDir, Debounce: debounce})
		},
	}

	cmd.Flags().StringVar(&watchDir, "watch", "", "Also watch this directory for rule file changes")
	cmd.Flags().DurationVar(&debounce, "debounce", importer.DefaultDebounce, "Quiet period before a changed file is re-imported")
	return cmd
}
