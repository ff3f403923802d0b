package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "heykeploy",
		Short: "Install the Keploy recorder and start recordings",
		Long: `heykeploy keeps the Keploy recorder binary (or its container image) up to
date and launches it in record mode for a command and test file.

Run "heykeploy bridge" to serve the editor panel's message protocol.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Context())
		},
	}
	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	rootCmd.SetVersionTemplate("heykeploy {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.configDir, "config-dir", "", "Configuration directory (default ~/.config/heykeploy)")
	flags.StringVar(&a.flags.dataDir, "data-dir", "", "Data directory (default ~/.local/share/heykeploy)")
	flags.StringVar(&a.flags.configFile, "config", "", "Config file (.lua, .yaml or .toml)")
	flags.StringVar(&a.flags.installDir, "install-dir", "", "Directory holding the keploy binary")
	flags.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVarP(&a.flags.quiet, "quiet", "q", false, "Hide progress output")

	rootCmd.AddCommand(newUpdateCmd(a))
	rootCmd.AddCommand(newRecordCmd(a))
	rootCmd.AddCommand(newLatestCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newBridgeCmd(a))

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}
