package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"taskforce/config"
	"taskforce/lifecycle"
	"taskforce/mission"
	"taskforce/plan"
	"taskforce/runtime"
	"taskforce/store"
)

// engine bundles the wired components every command needs.
type engine struct {
	cfg        *config.Config
	stores     *store.Bundle
	runtime    runtime.Runtime
	machine    *lifecycle.Machine
	controller *mission.Controller
	builder    *plan.Builder
	logger     hclog.Logger
}

// newEngine loads config and wires the engine. The lifecycle machine and
// the mission controller reference each other, so the notifier is attached
// after both exist.
func newEngine() (*engine, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "taskforce",
		Output: os.Stderr,
		Level:  hclog.Warn,
	})

	stores, err := store.NewBundle(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	rt, err := runtime.New(cfg.Runtime)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	machine := lifecycle.NewMachine(stores, nil, logger.Named("lifecycle"))
	selector := mission.NewSelector(stores, rt, cfg, logger.Named("selector"))
	controller := mission.NewController(stores, rt, selector, logger.Named("mission"))
	machine.SetNotifier(controller)
	builder := plan.NewBuilder(stores, rt, logger.Named("plan"))

	return &engine{
		cfg:        cfg,
		stores:     stores,
		runtime:    rt,
		machine:    machine,
		controller: controller,
		builder:    builder,
		logger:     logger,
	}, nil
}

func (e *engine) Close() {
	if err := e.runtime.Close(); err != nil {
		e.logger.Warn("runtime close failed", "error", err)
	}
	if err := e.stores.Close(); err != nil {
		e.logger.Warn("store close failed", "error", err)
	}
}

// fail prints the error and exits, the shared exit path for commands.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
