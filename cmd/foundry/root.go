package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var targetDirFlag string

var rootCmd = &cobra.Command{
	Use:   "foundry",
	Short: "Context Foundry build orchestrator",
	Long: `foundry drives an LLM-orchestrated build through six phases:
planning, scouting, architecting, building, validating, and (when
validation falls short) healing.

Core capabilities:
- Fans research and implementation out across bounded worker pools
- Tracks token spend per phase against a named budget profile
- Compacts conversational context before it runs out, not after
- Checkpoints after every phase transition so resume never redoes work
- Streams every phase transition, worker event, and validation result

Available commands:
  start    Start a new build against a description
  resume   Resume a build from its last checkpoint
  status   Show a build's current phase, ledger, and zone
  events   Tail a build's event log
  tui      Open a live dashboard for a running or finished build
  cancel   Request cooperative cancellation of a running build
  config   View or modify configuration
  version  Show version information

Use "foundry [command] --help" for more information about a command.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&targetDirFlag, "dir", "", "workspace directory (default: current directory)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(cancelCmd)
}
