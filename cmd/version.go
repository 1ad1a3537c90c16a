package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/devproxy/pkg/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short, _ := cmd.Flags().GetBool("short"); short {
				cmd.Println(version.Version())
				return
			}
			cmd.Println(version.String())
		},
	}
	cmd.Flags().BoolP("short", "s", false, "show only the version number")
	return cmd
}
