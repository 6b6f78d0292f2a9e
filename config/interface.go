// Package config provides configuration types and utilities for agentdock-core.
// This file defines the contract every nested section of Config (storage,
// session, orchestration, memory, recall, extraction) must implement.
package config

// ConfigInterface documents the SetDefaults/Validate shape every nested
// section of Config — StorageConfig, SessionConfig, OrchestrationConfig,
// MemoryConfig, RecallConfig, ExtractionConfig — satisfies. Config.SetDefaults
// and Config.Validate call each section by name rather than ranging over
// this interface, so it is a documented contract, not a dispatch mechanism.
type ConfigInterface interface {
	// Validate checks if the configuration is valid and returns an error if not
	Validate() error

	// SetDefaults sets default values for any unset fields
	SetDefaults()
}
