package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "meridian",
		Short: "Meridian - clustered geospatial data hub dispatch node",
		Long:  "Run a hub node with the daemon command, or administer a running cluster with the admin subcommands",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(
		daemonCmd(),
		connectorsCmd(),
		applyCmd(),
		removeCmd(),
		logLevelCmd(),
		invalidateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
