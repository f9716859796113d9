// Package cmd implements the daemon's cobra CLI: run, validate, version.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via
// -ldflags "-X github.com/nextlevelbuilder/agentdaemon/cmd.Version=v1.0.0"
var Version = "dev"

var (
	roleFile string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "agentdaemon",
	Short: "A role-driven LLM agent daemon",
	Long: "agentdaemon runs a single role-configured LLM agent against one or more " +
		"trigger sources (cron, file watch, webhook, Telegram, Discord), dispatching " +
		"each event through a concurrency-limited, budget-tracked execution pipeline.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&roleFile, "role", "r", "", "role definition YAML file (default: role.yaml or $AGENTDAEMON_ROLE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentdaemon %s\n", Version)
		},
	}
}

// resolveRolePath resolves the role file path: flag, then env var, then a
// default filename.
func resolveRolePath() string {
	if roleFile != "" {
		return roleFile
	}
	if v := os.Getenv("AGENTDAEMON_ROLE"); v != "" {
		return v
	}
	return "role.yaml"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
