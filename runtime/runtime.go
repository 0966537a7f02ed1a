// Package runtime provisions and tracks agent worker processes. The engine
// only ever talks to the Runtime interface; the plugin backend launches real
// worker subprocesses while the memory backend fakes them for tests and
// local development.
package runtime

import (
	"fmt"

	"taskforce/config"
)

// State of a provisioned worker.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StatePaused  State = "paused"

	// StateAbsent is reported for runtime ids no backend knows about,
	// matching the idempotent stop/remove contract.
	StateAbsent State = "absent"
)

// Runtime manages the execution environments that agents run in.
type Runtime interface {
	// Provision starts a worker for the agent and returns its runtime id.
	Provision(agentID, role string) (string, error)

	// Status reports the current state of a worker. An unknown runtime
	// id reports StateAbsent, not an error.
	Status(runtimeID string) (State, error)

	// Pause suspends a running worker. Pausing an already paused worker
	// is a no-op.
	Pause(runtimeID string) error

	// Resume reverses Pause. Resuming a running worker is a no-op.
	Resume(runtimeID string) error

	// Stop terminates the worker. Stopping an exited worker is a no-op.
	Stop(runtimeID string) error

	// Remove forgets the worker entirely, stopping it first if needed.
	Remove(runtimeID string) error

	// Close stops and removes every worker.
	Close() error
}

// New builds the runtime backend named in cfg.
func New(cfg *config.RuntimeConfig) (Runtime, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryRuntime(), nil
	case "plugin":
		return NewPluginRuntime(cfg.WorkerPath), nil
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", cfg.Backend)
	}
}
