package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugLoggerWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger: %v", err)
	}
	l.Log("dispatch: task %s routed to %s", "t1", "research-1")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "task t1 routed to research-1") {
		t.Errorf("log missing entry:\n%s", data)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for _, line := range lines {
		if !strings.HasPrefix(line, "[") {
			t.Errorf("line missing timestamp: %q", line)
		}
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	l := NopLogger()
	l.Log("goes nowhere")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	var nilLogger *DebugLogger
	nilLogger.Log("still fine")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestPackageLoggerHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger: %v", err)
	}
	setPackageLogger(l)
	defer setPackageLogger(nil)

	debugLog("planner: phase %s planned", "initiation")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "phase initiation planned") {
		t.Errorf("hooked message not written:\n%s", data)
	}
}
