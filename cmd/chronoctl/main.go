// Package main is the entry point for chronoctl, the task group
// submitter.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/chronod/internal/command"
	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/task"
)

var (
	serverAddr string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chronoctl [group config]",
	Short: "chronoctl - submit a task group to a running chronod",
	Long: `chronoctl reads a JSON task group description and pushes it to a
running chronod server, which schedules it immediately.`,
	Version:      "0.1.0",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Init(nil)

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read group config: %w", err)
		}

		var group task.GroupConfig
		if err := json.Unmarshal(data, &group); err != nil {
			return fmt.Errorf("parse group config %s: %w", args[0], err)
		}

		client := command.NewClient(serverAddr, timeout)
		if err := client.SubmitGroup(group); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Task group %q submitted\n", group.Name)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&serverAddr, "addr", "a", command.DefaultListenAddr,
		"address of the chronod ingestion socket")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second,
		"connection and acknowledgement timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
