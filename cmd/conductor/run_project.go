package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentmesh/conductor/internal/config"
	"github.com/agentmesh/conductor/internal/orchestrator"
	"github.com/agentmesh/conductor/internal/tui"
	"github.com/agentmesh/conductor/pkg/models"
)

var (
	runName        string
	runDescription string
	runType        string
	runProjectID   string
	runWatch       bool
	runConfigPath  string
)

var runProjectCmd = &cobra.Command{
	Use:   "run-project",
	Short: "Run a project through its lifecycle phases",
	Long: `Create a project and drive it through initiation, planning,
execution, monitoring, and closure. Each phase ends at a gate; the run
stops when a gate refuses passage or the project completes.

Exit codes:
  0  every gate passed and the project completed
  1  an operational error stopped the run
  2  a gate decided CONDITIONAL_GO or NO_GO

Examples:
  conductor run-project --name "checkout service" --type backend
  conductor run-project --name "churn model" --type ml --watch
  conductor run-project --project-id <id>   # resume a paused run`,
	RunE: runProject,
}

func init() {
	runProjectCmd.Flags().StringVar(&runName, "name", "", "Project name")
	runProjectCmd.Flags().StringVar(&runDescription, "description", "", "Project description")
	runProjectCmd.Flags().StringVar(&runType, "type", "", "Project type (frontend, backend, ml, analytics, fullstack, research)")
	runProjectCmd.Flags().StringVar(&runProjectID, "project-id", "", "Resume an existing project instead of creating one")
	runProjectCmd.Flags().BoolVar(&runWatch, "watch", false, "Show the live dashboard while the project runs")
	runProjectCmd.Flags().StringVar(&runConfigPath, "config", "", "Config file to use instead of the layered defaults")
}

func runProject(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	o, b, err := buildOrchestrator(cfg, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config edits mid-run are not hot-applied; the running bus and
	// gate evaluator keep their settings.
	if watcher, werr := config.Watch(func(*config.Config) {
		color.Yellow("config file changed; changes apply to the next run")
	}); werr == nil {
		defer watcher.Close()
	}

	if err := o.Start(ctx); err != nil {
		return err
	}
	defer o.Stop()

	project, err := resolveProject(o, db.GetProject)
	if err != nil {
		return err
	}

	var summary *orchestrator.RunSummary
	var runErr error
	if runWatch {
		summary, runErr = runWithDashboard(ctx, o, project)
	} else {
		go printEvents(o.Events())
		summary, runErr = o.RunProject(ctx, project.ID)
	}

	if dead := b.DeadLetters(); len(dead) > 0 {
		if path, err := dumpDeadLetters(dead); err == nil {
			color.Yellow("%d message(s) dead-lettered, dumped to %s", len(dead), path)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(summary)
	if !summary.Completed {
		return fmt.Errorf("%w: %s", errGateHalted, summary.LastDecision.Outcome)
	}
	return nil
}

// resolveProject loads the project to resume, or creates a fresh one
// from the flags.
func resolveProject(o *orchestrator.Orchestrator, get func(string) (*models.Project, error)) (*models.Project, error) {
	if runProjectID != "" {
		return get(runProjectID)
	}
	if runName == "" || runType == "" {
		return nil, fmt.Errorf("--name and --type are required (or --project-id to resume)")
	}
	project, err := o.CreateProject(runName, runDescription, models.ProjectType(runType))
	if err != nil {
		return nil, err
	}
	fmt.Printf("created project %s\n", project.ID)
	return project, nil
}

// runWithDashboard runs the project under the bubbletea dashboard,
// forwarding orchestrator events into it.
func runWithDashboard(ctx context.Context, o *orchestrator.Orchestrator, project *models.Project) (*orchestrator.RunSummary, error) {
	program, _ := tui.NewWatchProgram(project.Name)

	go func() {
		for event := range o.Events() {
			program.Send(tui.WatchEventMsg{Event: event})
		}
	}()

	type outcome struct {
		summary *orchestrator.RunSummary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := o.RunProject(ctx, project.ID)
		result := "halted"
		if err == nil && summary.Completed {
			result = "completed"
		} else if err == nil && summary.LastDecision != nil {
			result = string(summary.LastDecision.Outcome)
		}
		program.Send(tui.WatchDoneMsg{Outcome: result, Err: err})
		done <- outcome{summary, err}
	}()

	if _, err := program.Run(); err != nil {
		return nil, err
	}
	result := <-done
	return result.summary, result.err
}

// printEvents writes a plain log line per orchestrator event.
func printEvents(events <-chan orchestrator.Event) {
	for event := range events {
		switch event.Type {
		case orchestrator.EventPhaseStarted:
			color.Cyan("phase %s", event.Phase)
		case orchestrator.EventTaskPlanned:
			fmt.Printf("  planned   %s\n", event.Message)
		case orchestrator.EventTaskSucceeded:
			color.Green("  done      task %s", event.TaskID)
		case orchestrator.EventTaskRetrying:
			color.Yellow("  retrying  task %s", event.TaskID)
		case orchestrator.EventTaskEscalated:
			color.Red("  escalated %s", event.Message)
		case orchestrator.EventGateEvaluated:
			fmt.Printf("  %s\n", event.Message)
		}
	}
}

// printSummary renders the final decision breakdown.
func printSummary(summary *orchestrator.RunSummary) {
	if summary.Completed {
		color.Green("project %s completed: all %d gates passed", summary.ProjectID, len(summary.PhasesPassed))
		return
	}
	d := summary.LastDecision
	if d == nil {
		color.Red("project %s halted before its first gate", summary.ProjectID)
		return
	}

	color.Red("project %s halted at the %s gate: %s (score %.2f)", summary.ProjectID, d.FromPhase, d.Outcome, d.OverallScore)
	for _, c := range d.Criteria {
		line := fmt.Sprintf("  %-28s weight %3d  score %6.2f", c.Name, c.Weight, c.Score)
		if c.Score < 70 {
			color.Yellow("%s", line)
		} else {
			fmt.Println(line)
		}
	}
	for _, issue := range d.BlockingIssues {
		color.Red("  blocking: %s", issue.Description)
	}
	for _, action := range d.RequiredActions {
		fmt.Printf("  action: %s\n", action)
	}
}
