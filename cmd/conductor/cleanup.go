package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentmesh/conductor/internal/store"
)

var cleanupConfigPath string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Recover tasks interrupted by a crash",
	Long: `Run the recovery pass over tasks left in_progress by an
interrupted run. Tasks with retry budget left are requeued for the
next run; tasks that exhausted their retries are marked failed.

Use this after a crash before resuming a project with
'conductor run-project --project-id'.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupConfigPath, "config", "", "Config file to use instead of the layered defaults")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cleanupConfigPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := store.NewRecoveryManager(db).Recover()
	if err != nil {
		return err
	}
	if len(report.Requeued) == 0 && len(report.Failed) == 0 {
		fmt.Println("Nothing to recover.")
		return nil
	}
	for _, id := range report.Requeued {
		color.Green("requeued %s", id)
	}
	for _, id := range report.Failed {
		color.Red("failed %s (retries exhausted)", id)
	}
	return nil
}
