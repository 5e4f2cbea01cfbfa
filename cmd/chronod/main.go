// Package main is the entry point for the chronod scheduler server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/chronod/internal/daemon"
)

var pidFile string

var rootCmd = &cobra.Command{
	Use:   "chronod [config]",
	Short: "chronod - periodic task scheduler",
	Long: `chronod runs groups of external commands on a cron-like schedule.

It loads a JSON configuration describing task groups, captures the
standard streams of every execution under the configured log root, and
accepts additional task groups at runtime over a TCP socket (see
chronoctl).`,
	Version:      "0.1.0",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(args[0], pidFile)
		if err != nil {
			return err
		}
		if err := d.Start(); err != nil {
			return err
		}
		return d.Run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "", "PID file path (empty: disabled)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
