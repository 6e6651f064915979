package main

import (
	"fmt"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/capability"
	"github.com/agentmesh/conductor/internal/config"
	"github.com/agentmesh/conductor/internal/gate"
	"github.com/agentmesh/conductor/internal/orchestrator"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/internal/store"
	"github.com/agentmesh/conductor/pkg/models"
)

// loadConfig loads the layered configuration, or an explicit file when
// --config was given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// openStore opens and migrates the project database.
func openStore(cfg *config.Config) (*store.DB, error) {
	path := cfg.Store.Path
	if path == "" {
		path = store.DefaultPath()
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// builtinCapabilities registers the template specialists every run
// needs: project management plus one execution capability per
// supported project type.
func builtinCapabilities() (*capability.Registry, error) {
	reg := capability.NewRegistry()
	kinds := []string{"project_management"}
	for _, typ := range []models.ProjectType{
		models.ProjectFrontend, models.ProjectBackend, models.ProjectML,
		models.ProjectAnalytics, models.ProjectFullstack, models.ProjectResearch,
	} {
		kind, _ := orchestrator.CapabilityForType(typ)
		kinds = append(kinds, kind)
	}
	for _, kind := range kinds {
		if err := reg.Register(capability.NewTemplate(kind)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newEvaluator builds the gate evaluator with thresholds and weight
// overrides from config.
func newEvaluator(cfg *config.Config) (*gate.Evaluator, error) {
	evaluator := gate.NewEvaluator()
	if err := evaluator.SetThresholds(cfg.Gate.GoThreshold, cfg.Gate.ConditionalThreshold); err != nil {
		return nil, err
	}
	for phase, weights := range cfg.Gate.Weights {
		if err := evaluator.OverrideWeights(models.Phase(phase), weights); err != nil {
			return nil, fmt.Errorf("gate weights for %s: %w", phase, err)
		}
	}
	return evaluator, nil
}

// buildOrchestrator wires a full orchestrator from config. The caller
// owns the returned bus and store.
func buildOrchestrator(cfg *config.Config, db *store.DB) (*orchestrator.Orchestrator, *bus.Bus, error) {
	caps, err := builtinCapabilities()
	if err != nil {
		return nil, nil, err
	}
	evaluator, err := newEvaluator(cfg)
	if err != nil {
		return nil, nil, err
	}

	b := bus.New(cfg.BusSettings())
	o := orchestrator.New(db, b, registry.New(cfg.BreakerSettings()), caps, evaluator, orchestrator.Options{
		RetryPolicy:         cfg.RetryPolicy(),
		MaxParallelDispatch: cfg.Dispatch.MaxParallel,
		TaskDeadline:        cfg.Dispatch.TaskDeadline,
		DebugLogPath:        orchestrator.DefaultDebugLogPath(),
	})
	return o, b, nil
}
