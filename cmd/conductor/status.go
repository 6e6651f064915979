package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentmesh/conductor/internal/store"
	"github.com/agentmesh/conductor/pkg/models"
)

var (
	statusProjectID  string
	statusConfigPath string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project state",
	Long: `Display project state from the conductor database.

Without --project-id, lists all projects. With it, shows the project's
phase, task breakdown, gate decisions, and open registers.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusProjectID, "project-id", "", "Project to inspect")
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Config file to use instead of the layered defaults")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(statusConfigPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if statusProjectID == "" {
		return listProjects(db)
	}
	return showProject(db, statusProjectID)
}

func listProjects(db *store.DB) error {
	projects, err := db.ListProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects. Run 'conductor run-project' to start one.")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%s  %-24s %-10s phase=%-10s %s\n", p.ID, p.Name, p.Type, p.CurrentPhase, renderStatus(p.Status))
	}
	return nil
}

func showProject(db *store.DB, id string) error {
	p, err := db.GetProject(id)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", p.Name, p.ID)
	fmt.Printf("  type: %s  phase: %s  status: %s\n", p.Type, p.CurrentPhase, renderStatus(p.Status))
	if p.Description != "" {
		fmt.Printf("  %s\n", p.Description)
	}

	tasks, err := db.ListTasksByProject(id)
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		counts := make(map[models.TaskStatus]int)
		for _, t := range tasks {
			counts[t.Status]++
		}
		var parts []string
		for _, s := range []models.TaskStatus{models.TaskQueued, models.TaskInProgress, models.TaskPaused, models.TaskCompleted, models.TaskFailed} {
			if counts[s] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
			}
		}
		fmt.Printf("\nTasks (%s):\n", strings.Join(parts, ", "))
		for _, t := range tasks {
			line := fmt.Sprintf("  %-12s %3d%%  %s", t.Status, t.ProgressPercent, t.Description)
			switch t.Status {
			case models.TaskFailed:
				color.Red("%s", line)
			case models.TaskCompleted:
				color.Green("%s", line)
			default:
				fmt.Println(line)
			}
			if t.Error != "" {
				fmt.Printf("               %s\n", t.Error)
			}
		}
	}

	decisions, err := db.ListGateDecisions(id)
	if err != nil {
		return err
	}
	if len(decisions) > 0 {
		fmt.Println("\nGate decisions:")
		for _, d := range decisions {
			line := fmt.Sprintf("  gate %d (%s): %s, score %.2f", d.GateNumber, d.FromPhase, d.Outcome, d.OverallScore)
			if d.Outcome == models.GateGo {
				color.Green("%s", line)
			} else {
				color.Yellow("%s", line)
			}
		}
	}

	if err := printRegisters(db, id); err != nil {
		return err
	}
	return nil
}

func printRegisters(db *store.DB, id string) error {
	risks, err := db.ListRisks(id)
	if err != nil {
		return err
	}
	issues, err := db.ListIssues(id)
	if err != nil {
		return err
	}
	blockers, err := db.ListBlockers(id)
	if err != nil {
		return err
	}
	if len(risks)+len(issues)+len(blockers) == 0 {
		return nil
	}

	fmt.Println("\nRegisters:")
	for _, r := range risks {
		state := "open"
		if r.Mitigated {
			state = "mitigated"
		}
		fmt.Printf("  risk     [%s] %s (%s)\n", r.Severity, r.Description, state)
	}
	for _, i := range issues {
		state := "open"
		if i.Resolved {
			state = "resolved"
		}
		fmt.Printf("  issue    [%s] %s (%s)\n", i.Severity, i.Description, state)
	}
	for _, b := range blockers {
		state := "open"
		if b.Resolved {
			state = "resolved"
		}
		fmt.Printf("  blocker  [%s] %s (%s)\n", b.Severity, b.Description, state)
	}
	return nil
}

func renderStatus(s models.ProjectStatus) string {
	switch s {
	case models.ProjectCompleted:
		return color.GreenString(string(s))
	case models.ProjectFailed:
		return color.RedString(string(s))
	case models.ProjectPaused:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
