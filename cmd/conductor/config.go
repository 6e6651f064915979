package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmesh/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conductor configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conductor/config.yaml
Project-specific overrides can be placed in .conductor.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = "(default)"
	}
	fmt.Printf("store.path: %s\n", storePath)
	fmt.Printf("bus.ack_timeout: %s\n", cfg.Bus.AckTimeout)
	fmt.Printf("bus.max_deliveries: %d\n", cfg.Bus.MaxDeliveries)
	fmt.Printf("bus.sweep_interval: %s\n", cfg.Bus.SweepInterval)
	fmt.Printf("bus.history_size: %d\n", cfg.Bus.HistorySize)
	fmt.Printf("retry.max_attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("retry.initial_delay: %s\n", cfg.Retry.InitialDelay)
	fmt.Printf("retry.multiplier: %g\n", cfg.Retry.Multiplier)
	fmt.Printf("retry.max_delay: %s\n", cfg.Retry.MaxDelay)
	fmt.Printf("breaker.failure_threshold: %d\n", cfg.Breaker.FailureThreshold)
	fmt.Printf("breaker.recovery_timeout: %s\n", cfg.Breaker.RecoveryTimeout)
	fmt.Printf("breaker.success_threshold: %d\n", cfg.Breaker.SuccessThreshold)
	fmt.Printf("gate.go_threshold: %g\n", cfg.Gate.GoThreshold)
	fmt.Printf("gate.conditional_threshold: %g\n", cfg.Gate.ConditionalThreshold)
	fmt.Printf("dispatch.max_parallel: %d\n", cfg.Dispatch.MaxParallel)
	fmt.Printf("dispatch.task_deadline: %s\n", cfg.Dispatch.TaskDeadline)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "store.path":
		if cfg.Store.Path == "" {
			return "(default)", nil
		}
		return cfg.Store.Path, nil
	case "bus.ack_timeout":
		return cfg.Bus.AckTimeout.String(), nil
	case "bus.max_deliveries":
		return strconv.Itoa(cfg.Bus.MaxDeliveries), nil
	case "bus.sweep_interval":
		return cfg.Bus.SweepInterval.String(), nil
	case "bus.history_size":
		return strconv.Itoa(cfg.Bus.HistorySize), nil
	case "retry.max_attempts":
		return strconv.Itoa(cfg.Retry.MaxAttempts), nil
	case "retry.initial_delay":
		return cfg.Retry.InitialDelay.String(), nil
	case "retry.multiplier":
		return strconv.FormatFloat(cfg.Retry.Multiplier, 'g', -1, 64), nil
	case "retry.max_delay":
		return cfg.Retry.MaxDelay.String(), nil
	case "breaker.failure_threshold":
		return strconv.Itoa(cfg.Breaker.FailureThreshold), nil
	case "breaker.recovery_timeout":
		return cfg.Breaker.RecoveryTimeout.String(), nil
	case "breaker.success_threshold":
		return strconv.Itoa(cfg.Breaker.SuccessThreshold), nil
	case "gate.go_threshold":
		return strconv.FormatFloat(cfg.Gate.GoThreshold, 'g', -1, 64), nil
	case "gate.conditional_threshold":
		return strconv.FormatFloat(cfg.Gate.ConditionalThreshold, 'g', -1, 64), nil
	case "dispatch.max_parallel":
		return strconv.Itoa(cfg.Dispatch.MaxParallel), nil
	case "dispatch.task_deadline":
		return cfg.Dispatch.TaskDeadline.String(), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	parseDuration := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*dst = d
		return nil
	}
	parseInt := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	parseFloat := func(dst *float64) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	switch strings.ToLower(key) {
	case "store.path":
		cfg.Store.Path = value
		return nil
	case "bus.ack_timeout":
		return parseDuration(&cfg.Bus.AckTimeout)
	case "bus.max_deliveries":
		return parseInt(&cfg.Bus.MaxDeliveries)
	case "bus.sweep_interval":
		return parseDuration(&cfg.Bus.SweepInterval)
	case "bus.history_size":
		return parseInt(&cfg.Bus.HistorySize)
	case "retry.max_attempts":
		return parseInt(&cfg.Retry.MaxAttempts)
	case "retry.initial_delay":
		return parseDuration(&cfg.Retry.InitialDelay)
	case "retry.multiplier":
		return parseFloat(&cfg.Retry.Multiplier)
	case "retry.max_delay":
		return parseDuration(&cfg.Retry.MaxDelay)
	case "breaker.failure_threshold":
		return parseInt(&cfg.Breaker.FailureThreshold)
	case "breaker.recovery_timeout":
		return parseDuration(&cfg.Breaker.RecoveryTimeout)
	case "breaker.success_threshold":
		return parseInt(&cfg.Breaker.SuccessThreshold)
	case "gate.go_threshold":
		return parseFloat(&cfg.Gate.GoThreshold)
	case "gate.conditional_threshold":
		return parseFloat(&cfg.Gate.ConditionalThreshold)
	case "dispatch.max_parallel":
		return parseInt(&cfg.Dispatch.MaxParallel)
	case "dispatch.task_deadline":
		return parseDuration(&cfg.Dispatch.TaskDeadline)
	case "tui.refresh_rate":
		return parseDuration(&cfg.TUI.RefreshRate)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
}
