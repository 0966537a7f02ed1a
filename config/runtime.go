package config

import "fmt"

// RuntimeConfig defines how worker runtimes are provisioned
type RuntimeConfig struct {
	Backend    string `hcl:"backend,optional"`     // "memory" or "plugin"
	WorkerPath string `hcl:"worker_path,optional"` // worker executable for the plugin backend
}

// Defaults fills in default values for unset fields
func (r *RuntimeConfig) Defaults() {
	if r.Backend == "" {
		r.Backend = "memory"
	}
}

// Validate checks backend-specific requirements.
func (r *RuntimeConfig) Validate() error {
	switch r.Backend {
	case "memory":
		return nil
	case "plugin":
		if r.WorkerPath == "" {
			return fmt.Errorf("plugin backend requires worker_path")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend: %s (expected 'memory' or 'plugin')", r.Backend)
	}
}
