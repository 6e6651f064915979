package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// errGateHalted marks a run that stopped at a phase gate. Execute maps
// it to a distinct exit code so scripts can tell a refused gate from a
// crash.
var errGateHalted = errors.New("run halted at a phase gate")

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Multi-agent project orchestrator",
	Long: `Conductor drives projects through a phased lifecycle with a
hierarchy of agents: a coordinator owns phases and gates, a planner
turns phases into task plans, a supervisor dispatches tasks to
specialists over a message bus, and specialists execute capability
work.

Each phase ends at a gate: weighted criteria are scored, blockers and
deliverable coverage are checked, and the project advances only on a
GO decision.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errGateHalted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runProjectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(deadletterCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
