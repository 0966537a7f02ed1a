package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all orchestrator configuration.
type Config struct {
	Storage  *StorageConfig  `hcl:"storage,block"`
	Runtime  *RuntimeConfig  `hcl:"runtime,block"`
	Defaults *DefaultsConfig `hcl:"defaults,block"`
	Bridge   *BridgeConfig   `hcl:"bridge,block"`
	Roles    []RoleTemplate  `hcl:"role,block"`
	Routes   []Route         `hcl:"route,block"`
}

// DefaultsConfig carries engine-wide defaults.
type DefaultsConfig struct {
	// MaxRetries is the retry budget applied to tasks that do not set
	// their own. Zero means use the built-in default of 3.
	MaxRetries int `hcl:"max_retries,optional"`
}

// BridgeConfig configures the websocket operator bridge.
type BridgeConfig struct {
	Listen string `hcl:"listen,optional"` // default ":8571"
}

// Defaults fills in default values for unset fields
func (b *BridgeConfig) Defaults() {
	if b.Listen == "" {
		b.Listen = ":8571"
	}
}

// RoleTemplate describes an agent role the selector and graph builder can
// instantiate agents from.
type RoleTemplate struct {
	Name         string   `hcl:"name,label"`
	Capabilities []string `hcl:"capabilities,optional"`
	Reusable     *bool    `hcl:"reusable,optional"` // default true
	NamePrefix   string   `hcl:"name_prefix,optional"`
}

// IsReusable resolves the reusable flag, defaulting to true.
func (r *RoleTemplate) IsReusable() bool {
	return r.Reusable == nil || *r.Reusable
}

// Route maps a task type to the preferred agent role for assignment scoring.
type Route struct {
	TaskType string `hcl:"type,label"`
	Role     string `hcl:"role"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	ctx := buildEnvContext()

	merged := &Config{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		var cfg Config
		if diags := gohcl.DecodeBody(hclFile.Body, ctx, &cfg); diags.HasErrors() {
			return nil, fmt.Errorf("decode %s: %w", file, diags)
		}
		merged.merge(&cfg)
	}

	merged.applyDefaults()
	return merged, nil
}

// merge folds blocks from another file into the config. Singleton blocks
// are last-writer-wins; role and route blocks accumulate.
func (c *Config) merge(other *Config) {
	if other.Storage != nil {
		c.Storage = other.Storage
	}
	if other.Runtime != nil {
		c.Runtime = other.Runtime
	}
	if other.Defaults != nil {
		c.Defaults = other.Defaults
	}
	if other.Bridge != nil {
		c.Bridge = other.Bridge
	}
	c.Roles = append(c.Roles, other.Roles...)
	c.Routes = append(c.Routes, other.Routes...)
}

func (c *Config) applyDefaults() {
	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	c.Storage.Defaults()

	if c.Runtime == nil {
		c.Runtime = &RuntimeConfig{}
	}
	c.Runtime.Defaults()

	if c.Defaults == nil {
		c.Defaults = &DefaultsConfig{}
	}
	if c.Defaults.MaxRetries == 0 {
		c.Defaults.MaxRetries = 3
	}

	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{}
	}
	c.Bridge.Defaults()
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Runtime.Validate(); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	seenRoles := make(map[string]bool)
	for _, r := range c.Roles {
		if r.Name == "" {
			return fmt.Errorf("role template with empty name")
		}
		if seenRoles[r.Name] {
			return fmt.Errorf("duplicate role template '%s'", r.Name)
		}
		seenRoles[r.Name] = true
	}

	for _, rt := range c.Routes {
		if rt.Role == "" {
			return fmt.Errorf("route '%s': role is required", rt.TaskType)
		}
	}

	return nil
}

// RoleTemplateFor returns the template for the given role name, or nil.
func (c *Config) RoleTemplateFor(role string) *RoleTemplate {
	for i := range c.Roles {
		if c.Roles[i].Name == role {
			return &c.Roles[i]
		}
	}
	return nil
}

// RouteTable flattens the route blocks into a task-type → role lookup map.
func (c *Config) RouteTable() map[string]string {
	table := make(map[string]string, len(c.Routes))
	for _, rt := range c.Routes {
		table[rt.TaskType] = rt.Role
	}
	return table
}

// buildEnvContext exposes process environment variables to HCL expressions
// as env.NAME.
func buildEnvContext() *hcl.EvalContext {
	envMap := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			envMap[parts[0]] = cty.StringVal(parts[1])
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envMap),
		},
	}
}
