package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentmesh/conductor/pkg/models"
)

var deadletterClear bool

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect or clear dead-lettered messages",
	Long: `Show the messages that exhausted their delivery attempts
during the most recent run. run-project dumps them on exit; this
command reads that dump.

Examples:
  conductor deadletter          # list dead-lettered messages
  conductor deadletter --clear  # remove the dump`,
	RunE: runDeadletter,
}

func init() {
	deadletterCmd.Flags().BoolVar(&deadletterClear, "clear", false, "Remove the dead-letter dump")
}

// deadLetterEntry is the dump file record for one dead-lettered message.
type deadLetterEntry struct {
	MessageID     string    `yaml:"message_id"`
	CorrelationID string    `yaml:"correlation_id"`
	Kind          string    `yaml:"kind"`
	Sender        string    `yaml:"sender"`
	Recipient     string    `yaml:"recipient"`
	Priority      string    `yaml:"priority"`
	Timestamp     time.Time `yaml:"timestamp"`
	Payload       string    `yaml:"payload"`
}

// deadLetterPath returns the dump file location, honoring XDG_DATA_HOME.
func deadLetterPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "conductor", "deadletters.yaml")
}

// dumpDeadLetters writes the dead-letter set to the dump file.
func dumpDeadLetters(messages []models.Message) (string, error) {
	entries := make([]deadLetterEntry, len(messages))
	for i, m := range messages {
		entries[i] = deadLetterEntry{
			MessageID:     m.ID,
			CorrelationID: m.CorrelationID,
			Kind:          string(m.Kind),
			Sender:        m.Sender.AgentID,
			Recipient:     m.Recipient.AgentID,
			Priority:      string(m.Priority),
			Timestamp:     m.Timestamp,
			Payload:       string(m.Payload),
		}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", err
	}
	path := deadLetterPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func runDeadletter(cmd *cobra.Command, args []string) error {
	path := deadLetterPath()

	if deadletterClear {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No dead letters.")
				return nil
			}
			return err
		}
		color.Green("Dead-letter dump cleared.")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No dead letters.")
			return nil
		}
		return err
	}
	var entries []deadLetterEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if len(entries) == 0 {
		fmt.Println("No dead letters.")
		return nil
	}

	color.Red("%d dead-lettered message(s):", len(entries))
	for _, e := range entries {
		fmt.Printf("  %s  kind=%-14s %s -> %s  correlation=%s\n", e.Timestamp.Format(time.RFC3339), e.Kind, e.Sender, e.Recipient, e.CorrelationID)
	}
	return nil
}
