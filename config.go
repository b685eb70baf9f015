// config.go: Node configuration, defaults, validation and file loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSubsystem is the directory under Root holding deployed modules.
	DefaultSubsystem = "deploy"

	// DefaultPoolSize is the number of concurrent management tasks.
	DefaultPoolSize = 5

	DefaultGRPCAddress = ":7400"
)

// Config configures a deploy node.
//
// Example YAML:
//
//	root: /var/lib/node/plugins
//	allowed_domains: [artifacts.example.com]
//	pool_size: 4
//	settings:
//	  cluster:
//	    name: prod
//	audit:
//	  enabled: true
//	  output_file: /var/log/node/deploy-audit.jsonl
type Config struct {
	// Root is the plugin root; modules live in <Root>/<Subsystem>/plugins/<name>.
	Root      string `json:"root" yaml:"root"`
	Subsystem string `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`

	// Enabled turns deploys on or off. Nil means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// AllowedDomains are host suffixes a remote source may come from.
	AllowedDomains []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`

	PoolSize int        `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	Scan     ScanConfig `json:"scan,omitempty" yaml:"scan,omitempty"`

	// Settings is the host base configuration handed to every module.
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`

	Audit AuditOptions `json:"audit,omitempty" yaml:"audit,omitempty"`

	NodeID      string `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	GRPCAddress string `json:"grpc_address,omitempty" yaml:"grpc_address,omitempty"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultConfig returns a configuration rooted at root.
func DefaultConfig(root string) Config {
	cfg := Config{Root: root}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Subsystem == "" {
		c.Subsystem = DefaultSubsystem
	}
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	c.Scan.applyDefaults()
	if c.Settings == nil {
		c.Settings = make(map[string]any)
	}
	if c.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.NodeID = host
		} else {
			c.NodeID = "local"
		}
	}
	if c.GRPCAddress == "" {
		c.GRPCAddress = DefaultGRPCAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// IsEnabled reports whether deploys are accepted.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return NewConfigValidationError("root is required")
	}
	if strings.ContainsAny(c.Subsystem, `/\`) || c.Subsystem == ".." {
		return NewConfigValidationError("subsystem must be a single path segment")
	}
	for _, d := range c.AllowedDomains {
		if strings.TrimSpace(d) == "" {
			return NewConfigValidationError("allowed_domains contains an empty entry")
		}
	}
	if c.Audit.Enabled && c.Audit.OutputFile == "" {
		return NewConfigValidationError("audit.output_file is required when audit is enabled")
	}
	return nil
}

// PluginsDir returns <Root>/<Subsystem>/plugins.
func (c *Config) PluginsDir() string {
	return filepath.Join(c.Root, c.Subsystem, "plugins")
}

// LoadConfigFromFile loads a configuration file in any format argus
// detects. ${VAR:-default} references are expanded before parsing, then
// GO_DEPLOY_* environment overrides, defaults and validation apply.
func LoadConfigFromFile(path string) (Config, error) {
	var cfg Config

	cleanPath := filepath.Clean(path)
	// #nosec G304 -- operator supplied configuration path
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, NewConfigNotFoundError(path)
		}
		return cfg, NewConfigParseError(path, err)
	}

	expanded, err := ExpandEnvironmentVariables(string(data), DefaultEnvConfigOptions())
	if err != nil {
		return cfg, NewConfigParseError(path, err)
	}

	raw, err := parseConfigBytes([]byte(expanded), cleanPath)
	if err != nil {
		return cfg, NewConfigParseError(path, err)
	}
	if err := bindConfig(raw, &cfg); err != nil {
		return cfg, NewConfigParseError(path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// bindConfig maps a parsed configuration tree onto cfg through its yaml tags.
func bindConfig(raw map[string]any, cfg *Config) error {
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := yaml.Unmarshal(encoded, cfg); err != nil {
		return fmt.Errorf("failed to bind configuration: %w", err)
	}
	return nil
}
