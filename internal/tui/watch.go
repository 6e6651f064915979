package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentmesh/conductor/internal/orchestrator"
)

// WatchEventMsg wraps one orchestrator event for the dashboard.
type WatchEventMsg struct {
	Event orchestrator.Event
}

// WatchDoneMsg signals that the run finished.
type WatchDoneMsg struct {
	Outcome string
	Err     error
}

// taskRow is one line in the task list.
type taskRow struct {
	id          string
	description string
	state       string
}

// WatchApp is the bubbletea model for the watch dashboard.
type WatchApp struct {
	projectName string
	phase       string
	outcome     string
	done        bool
	err         error
	quitting    bool

	spinner  spinner.Model
	log      viewport.Model
	logLines []string
	tasks    []taskRow
	taskIdx  map[string]int

	width  int
	height int

	titleStyle   lipgloss.Style
	phaseStyle   lipgloss.Style
	successStyle lipgloss.Style
	failStyle    lipgloss.Style
	hintStyle    lipgloss.Style
	borderStyle  lipgloss.Style
	stateStyles  map[string]lipgloss.Style
}

// NewWatchApp creates a dashboard for the named project.
func NewWatchApp(projectName string) *WatchApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &WatchApp{
		projectName: projectName,
		spinner:     s,
		log:         viewport.New(80, 10),
		taskIdx:     make(map[string]int),
		width:       80,
		height:      24,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true),

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),

		stateStyles: map[string]lipgloss.Style{
			"planned":    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			"dispatched": lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
			"retrying":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"succeeded":  lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			"escalated":  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		},
	}
}

// NewWatchProgram creates the dashboard and a tea.Program running it.
func NewWatchProgram(projectName string) (*tea.Program, *WatchApp) {
	app := NewWatchApp(projectName)
	return tea.NewProgram(app, tea.WithAltScreen()), app
}

// Init implements tea.Model.
func (a *WatchApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *WatchApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.log, cmd = a.log.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.log.Width = msg.Width - 4
		a.log.Height = a.logHeight()
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case WatchEventMsg:
		a.absorb(msg.Event)
		return a, nil

	case WatchDoneMsg:
		a.done = true
		a.outcome = msg.Outcome
		a.err = msg.Err
		return a, nil
	}
	return a, nil
}

// absorb folds one orchestrator event into the dashboard state.
func (a *WatchApp) absorb(event orchestrator.Event) {
	switch event.Type {
	case orchestrator.EventPhaseStarted:
		a.phase = event.Phase
		a.tasks = nil
		a.taskIdx = make(map[string]int)
		a.appendLog(event, "phase started")
	case orchestrator.EventTaskPlanned:
		if _, ok := a.taskIdx[event.TaskID]; !ok {
			a.taskIdx[event.TaskID] = len(a.tasks)
			a.tasks = append(a.tasks, taskRow{id: event.TaskID, description: event.Message, state: "planned"})
		}
	case orchestrator.EventTaskDispatched:
		a.setTaskState(event.TaskID, "dispatched")
	case orchestrator.EventTaskRetrying:
		a.setTaskState(event.TaskID, "retrying")
		a.appendLog(event, "retrying")
	case orchestrator.EventTaskSucceeded:
		a.setTaskState(event.TaskID, "succeeded")
	case orchestrator.EventTaskEscalated:
		a.setTaskState(event.TaskID, "escalated")
		a.appendLog(event, event.Message)
	case orchestrator.EventGateEvaluated:
		a.appendLog(event, "gate: "+event.Message)
	case orchestrator.EventProjectDone:
		a.appendLog(event, "project completed")
	case orchestrator.EventProjectHalted:
		a.appendLog(event, "project halted: "+event.Message)
	default:
		if event.Message != "" {
			a.appendLog(event, event.Message)
		}
	}
}

func (a *WatchApp) setTaskState(taskID, state string) {
	if i, ok := a.taskIdx[taskID]; ok {
		a.tasks[i].state = state
	}
}

func (a *WatchApp) appendLog(event orchestrator.Event, line string) {
	stamp := event.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}
	a.logLines = append(a.logLines, fmt.Sprintf("%s %s", stamp.Format("15:04:05"), line))
	if len(a.logLines) > 200 {
		a.logLines = a.logLines[len(a.logLines)-200:]
	}
	a.log.SetContent(strings.Join(a.logLines, "\n"))
	a.log.GotoBottom()
}

func (a *WatchApp) logHeight() int {
	h := a.height - len(a.tasks) - 8
	if h < 3 {
		h = 3
	}
	return h
}

// View implements tea.Model.
func (a *WatchApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	title := a.titleStyle.Render("conductor: " + a.projectName)
	if a.phase != "" {
		title += "  " + a.phaseStyle.Render("["+a.phase+"]")
	}
	if a.done {
		if a.err == nil && a.outcome == "completed" {
			title += "  " + a.successStyle.Render("✓ completed")
		} else {
			title += "  " + a.failStyle.Render("✗ "+a.statusLine())
		}
	} else {
		title += "  " + a.spinner.View()
	}
	b.WriteString(title + "\n\n")

	for _, row := range a.tasks {
		style, ok := a.stateStyles[row.state]
		if !ok {
			style = a.hintStyle
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", style.Render(stateGlyph(row.state)), row.description))
	}
	b.WriteString("\n")
	b.WriteString(a.borderStyle.Render(a.log.View()) + "\n")
	b.WriteString(a.hintStyle.Render("  q: quit  ↑/↓: scroll log"))
	return b.String()
}

func (a *WatchApp) statusLine() string {
	if a.err != nil {
		return a.err.Error()
	}
	if a.outcome == "" {
		return "stopped"
	}
	return a.outcome
}

// stateGlyph maps a dispatch state to its one-character indicator.
func stateGlyph(state string) string {
	switch state {
	case "planned":
		return "○"
	case "dispatched":
		return "◐"
	case "retrying":
		return "↻"
	case "succeeded":
		return "●"
	case "escalated":
		return "✗"
	default:
		return "·"
	}
}
