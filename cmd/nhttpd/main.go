// Command nhttpd is a small todo service built with nhttp
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nhttpd",
		Short: "Todo service built on nhttp endpoints",
		Long: `nhttpd serves a todo list over HTTP.

Configuration comes from an optional YAML file (--config) and from
NHTTP_ environment variables such as NHTTP_SERVER_ADDR and
NHTTP_LOG_LEVEL.  Command line flags win over both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "configuration file")
	root.AddCommand(newServeCommand())
	root.AddCommand(newRoutesCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nhttpd", Version)
		},
	})
	return root
}
