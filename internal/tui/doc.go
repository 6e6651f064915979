// Package tui provides the watch dashboard for conductor's
// run-project command.
//
// The dashboard is a read-only bubbletea view over the orchestrator's
// event stream. It shows:
//   - The project being run, its current phase, and overall status
//   - A task list with per-task dispatch state indicators
//   - An activity log of recent orchestration events
//   - Gate decisions as phases complete
//
// Users can only scroll the log and quit with 'q' or Ctrl+C; all
// orchestration control stays with the CLI.
//
// Usage:
//
//	program, app := tui.NewWatchProgram("my project")
//	go forwardEvents(program, orchestrator.Events())
//	program.Run()
//
// forwardEvents wraps each orchestrator.Event in a WatchEventMsg and
// ends the program with a WatchDoneMsg when the run finishes.
package tui
