package config

import "fmt"

// StorageConfig defines the record store backend
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite" or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".taskforce/store.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.Path == "" {
		s.Path = ".taskforce/store.db"
	}
}

// Validate checks backend-specific requirements.
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend: %s (expected 'memory', 'sqlite' or 'postgres')", s.Backend)
	}
}
