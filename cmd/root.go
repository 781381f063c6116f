// Package cmd provides the rulebase command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"rulebase/bootstrap"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// defaultTimeout bounds every one-shot command
const defaultTimeout = 5 * time.Minute

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
	logLevel   string
	settings   []string
}

// overrides parses the repeated --set key=value flags.
func (o *rootOptions) overrides() (map[string]string, error) {
	out := make(map[string]string, len(o.settings))
	for _, kv := range o.settings {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", kv)
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

// openApp builds the application context for one command invocation. The caller must
// call Shutdown.
func (o *rootOptions) openApp(ctx context.Context) (*bootstrap.App, error) {
	overrides, err := o.overrides()
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.NewApp(ctx, bootstrap.Options{
		ConfigFile: o.configFile,
		LogLevel:   o.logLevel,
		NoColor:    o.noColor,
		Quiet:      o.quiet,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return app, nil
}

// NewRootCmd creates the rulebase command with all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "rulebase",
		Short: "Versioned rule database",
		Long: `Manage a versioned database of coding and writing rules.

Rules are imported from markdown, YAML or JSON documents, checked for conflicts,
indexed for multi-dimensional search and served over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress non-essential output")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().StringArrayVar(&opts.settings, "set", nil, "Override a setting, e.g. --set storage.backend=files (repeatable)")

	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newShowCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newAddCmd(opts))
	root.AddCommand(newActivateCmd(opts, true))
	root.AddCommand(newActivateCmd(opts, false))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newTagsCmd(opts))
	root.AddCommand(newConflictsCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newRestoreCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newConfigCmd(opts))

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// outputAsJSON writes data as indented JSON
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
