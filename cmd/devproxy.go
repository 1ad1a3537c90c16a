// Package cmd implements the devproxy command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bnema/devproxy/internal/config"
	"github.com/bnema/devproxy/pkg/version"
)

// NewRootCmd creates the root command for the devproxy CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "devproxy",
		Short: "devproxy - local HTTPS proxy for front-end development",
		Long: `devproxy terminates TLS for your development domain and routes every
request either to the local application server or, for /api/ paths, to the
API backend. Cookies, headers and WebSocket upgrades pass through.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default ./"+config.DefaultFile+" if present)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to read variables from (default ./.env if present)")
	config.BindFlags(flags)

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCheckCmd(opts))
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// ExecuteCLI runs the root command and exits with status 1 on error.
func ExecuteCLI(build, commit, date string) {
	version.Set(build, commit, date)
	cobra.CheckErr(NewRootCmd().ExecuteContext(context.Background()))
}
