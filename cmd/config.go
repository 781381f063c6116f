package cmd

import (
	"fmt"
	"strings"

	"rulebase/bootstrap"
	"rulebase/config"

	"github.com/spf13/cobra"
)

// newConfigCmd creates the 'config' subcommand
func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Inspect configuration after the config file, RULEBASE_* environment variables
and --set overrides have been applied. Sensitive values are masked.`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadEffectiveConfig(opts)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), cfg.Masked())
			}
			renderConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadEffectiveConfig(opts)
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]string{
					"key":   strings.ToLower(args[0]),
					"value": value,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List every setting that --set accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			if opts.outputJSON {
				out := make(map[string]config.SettingSchema, len(keys))
				for _, k := range keys {
					out[k], _ = config.Schema(k)
				}
				return outputAsJSON(cmd.OutOrStdout(), out)
			}
			renderSettingKeys(cmd.OutOrStdout(), keys)
			return nil
		},
	})

	return configCmd
}

func loadEffectiveConfig(opts *rootOptions) (*config.Config, error) {
	overrides, err := opts.overrides()
	if err != nil {
		return nil, err
	}
	return bootstrap.InitConfig(opts.configFile, overrides)
}
