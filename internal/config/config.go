// Package config handles configuration loading and management for
// conductor. It supports XDG config paths, project-level overrides,
// environment variables, and live reload of the user config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/agentmesh/conductor/internal/breaker"
	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/retry"
)

// Config holds all configuration for conductor.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Bus      BusConfig      `mapstructure:"bus"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Gate     GateConfig     `mapstructure:"gate"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	TUI      TUIConfig      `mapstructure:"tui"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means the XDG default.
	Path string `mapstructure:"path"`
}

// BusConfig holds message delivery settings.
type BusConfig struct {
	AckTimeout    time.Duration `mapstructure:"ack_timeout"`
	MaxDeliveries int           `mapstructure:"max_deliveries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	HistorySize   int           `mapstructure:"history_size"`
}

// RetryConfig holds the dispatch retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig holds per-endpoint circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

// GateConfig holds phase gate thresholds and optional per-phase
// criterion weight overrides. Weights for a phase must sum to 100.
type GateConfig struct {
	GoThreshold          float64                   `mapstructure:"go_threshold"`
	ConditionalThreshold float64                   `mapstructure:"conditional_threshold"`
	Weights              map[string]map[string]int `mapstructure:"weights"`
}

// DispatchConfig holds task dispatch settings.
type DispatchConfig struct {
	// MaxParallel caps tasks dispatched concurrently within a phase.
	MaxParallel int `mapstructure:"max_parallel"`
	// TaskDeadline, when non-zero, bounds each task's execution.
	TaskDeadline time.Duration `mapstructure:"task_deadline"`
}

// TUIConfig holds watch dashboard settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// BusSettings converts the config into the bus package's Config.
func (c *Config) BusSettings() bus.Config {
	return bus.Config{
		AckTimeout:    c.Bus.AckTimeout,
		MaxDeliveries: c.Bus.MaxDeliveries,
		SweepInterval: c.Bus.SweepInterval,
		HistorySize:   c.Bus.HistorySize,
		// Redelivery backs off the way dispatch retries do.
		RedeliveryDelay:      c.Retry.InitialDelay,
		RedeliveryMultiplier: c.Retry.Multiplier,
		RedeliveryMaxDelay:   c.Retry.MaxDelay,
	}
}

// RetryPolicy converts the config into a retry policy. Retryability
// stays on the error-class default.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		Multiplier:   c.Retry.Multiplier,
		MaxDelay:     c.Retry.MaxDelay,
	}
}

// BreakerSettings converts the config into the breaker package's Config.
func (c *Config) BreakerSettings() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		SuccessThreshold: c.Breaker.SuccessThreshold,
	}
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_*)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()
	v.BindEnv("store.path", "CONDUCTOR_STORE_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Store.Path = os.ExpandEnv(cfg.Store.Path)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Store.Path = os.ExpandEnv(cfg.Store.Path)
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("store.path", cfg.Store.Path)
	v.Set("bus.ack_timeout", cfg.Bus.AckTimeout.String())
	v.Set("bus.max_deliveries", cfg.Bus.MaxDeliveries)
	v.Set("bus.sweep_interval", cfg.Bus.SweepInterval.String())
	v.Set("bus.history_size", cfg.Bus.HistorySize)
	v.Set("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.Set("retry.initial_delay", cfg.Retry.InitialDelay.String())
	v.Set("retry.multiplier", cfg.Retry.Multiplier)
	v.Set("retry.max_delay", cfg.Retry.MaxDelay.String())
	v.Set("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.Set("breaker.recovery_timeout", cfg.Breaker.RecoveryTimeout.String())
	v.Set("breaker.success_threshold", cfg.Breaker.SuccessThreshold)
	v.Set("gate.go_threshold", cfg.Gate.GoThreshold)
	v.Set("gate.conditional_threshold", cfg.Gate.ConditionalThreshold)
	v.Set("dispatch.max_parallel", cfg.Dispatch.MaxParallel)
	v.Set("dispatch.task_deadline", cfg.Dispatch.TaskDeadline.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "")

	v.SetDefault("bus.ack_timeout", "30s")
	v.SetDefault("bus.max_deliveries", 3)
	v.SetDefault("bus.sweep_interval", "5s")
	v.SetDefault("bus.history_size", 100)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "10s")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", "60s")
	v.SetDefault("breaker.success_threshold", 2)

	v.SetDefault("gate.go_threshold", 85.0)
	v.SetDefault("gate.conditional_threshold", 70.0)

	v.SetDefault("dispatch.max_parallel", 4)
	v.SetDefault("dispatch.task_deadline", "0s")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			AckTimeout:    30 * time.Second,
			MaxDeliveries: 3,
			SweepInterval: 5 * time.Second,
			HistorySize:   100,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		Gate: GateConfig{
			GoThreshold:          85,
			ConditionalThreshold: 70,
		},
		Dispatch: DispatchConfig{
			MaxParallel: 4,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
