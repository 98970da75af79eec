// Package cmd holds the persona command line.
package cmd

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	systemPath string
	envPath    string
}

// NewRootCmd creates the persona root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "persona",
		Short:         "Chat as the site owner, grounded on their summary and profile",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "application config file")
	cmd.PersistentFlags().StringVar(&opts.systemPath, "system", "system.json", "engine parameters file")
	cmd.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	return cmd
}
