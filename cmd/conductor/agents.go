package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentmesh/conductor/pkg/models"
)

var agentsConfigPath string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the specialist agents a run would register",
	Long: `Start the specialist hosts the way run-project does and print
the resulting agent registry: one endpoint per registered capability,
with its breaker state and reported load.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVar(&agentsConfigPath, "config", "", "Config file to use instead of the layered defaults")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(agentsConfigPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	o, _, err := buildOrchestrator(cfg, db)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		return err
	}
	defer o.Stop()

	endpoints := o.Registry().Snapshot()
	if len(endpoints) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}
	for _, ep := range endpoints {
		line := fmt.Sprintf("%-28s type=%-24s status=%-8s load=%3d  breaker=%s", ep.ID, ep.AgentType, ep.Status, ep.Load, ep.BreakerState)
		if ep.Status == models.EndpointActive {
			color.Green("%s", line)
		} else {
			color.Yellow("%s", line)
		}
	}
	return nil
}
