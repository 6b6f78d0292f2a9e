// Package config provides configuration types and utilities for agentdock-core.
// This file contains the main unified configuration entry point.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// MAIN UNIFIED CONFIGURATION
// ============================================================================

// Config is the construction surface of the core (spec §6's Configuration
// surface table). A caller loads one Config, builds a storage provider
// from Storage, and passes the rest to the session/orchestration/memory/
// recall/extraction constructors.
type Config struct {
	Storage       StorageConfig       `yaml:"storage,omitempty"`
	Session       SessionConfig       `yaml:"session,omitempty"`
	Orchestration OrchestrationConfig `yaml:"orchestration,omitempty"`
	Memory        MemoryConfig        `yaml:"memory,omitempty"`
	Recall        RecallConfig        `yaml:"recall,omitempty"`
	Extraction    ExtractionConfig    `yaml:"extraction,omitempty"`
}

// SetDefaults applies defaults section by section.
func (c *Config) SetDefaults() {
	c.Storage.SetDefaults()
	c.Session.SetDefaults()
	c.Orchestration.SetDefaults()
	c.Memory.SetDefaults()
	c.Recall.SetDefaults()
	c.Extraction.SetDefaults()
}

// Validate validates section by section, wrapping each failure with the
// section name so misconfiguration is easy to trace back to the YAML key.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Orchestration.Validate(); err != nil {
		return fmt.Errorf("orchestration: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.Recall.Validate(); err != nil {
		return fmt.Errorf("recall: %w", err)
	}
	if err := c.Extraction.Validate(); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	return nil
}

// Default returns a Config with every section defaulted — an in-process
// memory backend, a 30 minute session TTL, a 20% extraction rate.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads a YAML file, expands ${VAR} / ${VAR:-default} references
// against the process environment (after loading any .env / .env.local
// files found in the working directory), applies defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load .env files: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	return LoadFromString(string(raw))
}

// LoadFromString parses yamlContent the same way Load parses a file.
func LoadFromString(yamlContent string) (*Config, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &generic); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	expanded := ExpandEnvVarsInData(generic)

	// Round-trip through YAML again so the expanded generic map decodes
	// into the typed Config via the same yaml tags.
	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
