// Package config provides configuration types and loading for agentdock-core.
// This file contains all configuration types in a unified structure, mirroring
// the Configuration surface table of the core specification one field at a time.
package config

import "fmt"

// ============================================================================
// STORAGE
// ============================================================================

// BackendType selects a StorageProvider implementation.
type BackendType string

const (
	BackendMemory   BackendType = "memory"
	BackendSQLite   BackendType = "sqlite"
	BackendPostgres BackendType = "postgres"
	BackendMySQL    BackendType = "mysql"
	BackendRedis    BackendType = "redis"
)

// VectorBackendType selects the optional vector capability for a provider.
type VectorBackendType string

const (
	VectorNone     VectorBackendType = ""
	VectorChromem  VectorBackendType = "chromem"
	VectorQdrant   VectorBackendType = "qdrant"
	VectorPinecone VectorBackendType = "pinecone"
)

// StorageConfig configures the StorageProvider factory (spec §4.1, §6).
type StorageConfig struct {
	// Type selects the backend. Default: "memory".
	Type BackendType `yaml:"type,omitempty"`

	// Namespace prefixes every key the provider touches. Part of the
	// factory's (type, namespace) resolution key.
	Namespace string `yaml:"namespace,omitempty"`

	// DSN is the connection string for sql backends (sqlite path, postgres
	// or mysql DSN). Unused for memory/redis.
	DSN string `yaml:"dsn,omitempty"`

	// Addr is the redis address (host:port). Unused otherwise.
	Addr string `yaml:"addr,omitempty"`

	// Vector selects the optional vector capability bundle.
	Vector VectorBackendType `yaml:"vector,omitempty"`

	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// ChromemConfig configures the embedded chromem-go vector provider.
type ChromemConfig struct {
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	APIKey      string `yaml:"api_key,omitempty"`
	Host        string `yaml:"host,omitempty"`
	IndexName   string `yaml:"index_name,omitempty"`
	Environment string `yaml:"environment,omitempty"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = BackendMemory
	}
	if c.Namespace == "" {
		c.Namespace = "agentdock"
	}
	if c.Vector == VectorChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Type {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendMySQL, BackendRedis:
	case "":
		return fmt.Errorf("storage type is required")
	default:
		return fmt.Errorf("unknown storage type: %q", c.Type)
	}

	if (c.Type == BackendSQLite || c.Type == BackendPostgres || c.Type == BackendMySQL) && c.DSN == "" {
		return fmt.Errorf("storage dsn is required for backend %q", c.Type)
	}
	if c.Type == BackendRedis && c.Addr == "" {
		return fmt.Errorf("storage addr is required for backend %q", c.Type)
	}

	switch c.Vector {
	case VectorNone, VectorChromem:
	case VectorQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required when storage.vector = qdrant")
		}
	case VectorPinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key is required when storage.vector = pinecone")
		}
	default:
		return fmt.Errorf("unknown vector backend: %q", c.Vector)
	}
	return nil
}

// ============================================================================
// SESSION
// ============================================================================

// SessionConfig configures the SessionStateManager (spec §4.3, §6).
type SessionConfig struct {
	// TTLSeconds is the idle session lifetime. Default: 1800 (30 minutes).
	TTLSeconds int64 `yaml:"ttl_seconds,omitempty"`

	// SweepIntervalMs is the sweeper cadence. Default: 60000 (1 minute).
	SweepIntervalMs int64 `yaml:"sweep_interval_ms,omitempty"`
}

func (c *SessionConfig) SetDefaults() {
	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 1800
	}
	if c.SweepIntervalMs <= 0 {
		c.SweepIntervalMs = 60_000
	}
}

func (c *SessionConfig) Validate() error {
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("session.ttl_seconds must be positive")
	}
	if c.SweepIntervalMs <= 0 {
		return fmt.Errorf("session.sweep_interval_ms must be positive")
	}
	return nil
}

// ============================================================================
// ORCHESTRATION
// ============================================================================

// OrchestrationConfig configures the OrchestrationManager's bookkeeping
// limits (spec §4.5, §6). The orchestration step graph itself is a
// caller-supplied input, not part of static configuration — see
// orchestration.Config.
type OrchestrationConfig struct {
	// RecentToolsCap bounds recentlyUsedTools. Default: 20.
	RecentToolsCap int `yaml:"recent_tools_cap,omitempty"`
}

func (c *OrchestrationConfig) SetDefaults() {
	if c.RecentToolsCap <= 0 {
		c.RecentToolsCap = 20
	}
}

func (c *OrchestrationConfig) Validate() error {
	if c.RecentToolsCap <= 0 {
		return fmt.Errorf("orchestration.recent_tools_cap must be positive")
	}
	return nil
}

// ============================================================================
// MEMORY DECAY
// ============================================================================

// DecayConfig configures MemoryOps.applyDecay (spec §4.2, §6).
type DecayConfig struct {
	Rate            float64 `yaml:"rate,omitempty"`
	ImportanceWeight float64 `yaml:"importance_weight,omitempty"`
	AccessBoost     float64 `yaml:"access_boost,omitempty"`
	Floor           float64 `yaml:"floor,omitempty"`
}

type MemoryConfig struct {
	Decay DecayConfig `yaml:"decay,omitempty"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.Decay.Rate <= 0 {
		c.Decay.Rate = 0.1
	}
	if c.Decay.Floor <= 0 {
		c.Decay.Floor = 0.01
	}
	// ImportanceWeight and AccessBoost legitimately default to zero.
}

func (c *MemoryConfig) Validate() error {
	if c.Decay.Rate < 0 {
		return fmt.Errorf("memory.decay.rate must be >= 0")
	}
	if c.Decay.Floor < 0 {
		return fmt.Errorf("memory.decay.floor must be >= 0")
	}
	return nil
}

// ============================================================================
// RECALL
// ============================================================================

// HybridWeights configures the fusion weights for cross-signal recall
// (spec §4.6, §6). Vector/text feed MemoryOps.hybridSearch's RRF fusion;
// temporal/procedural feed RecallService's cross-tier re-scoring.
type HybridWeights struct {
	Vector     float64 `yaml:"vector,omitempty"`
	Text       float64 `yaml:"text,omitempty"`
	Temporal   float64 `yaml:"temporal,omitempty"`
	Procedural float64 `yaml:"procedural,omitempty"`
}

type RecallConfig struct {
	HybridWeights HybridWeights `yaml:"hybrid_weights,omitempty"`
	Limit         int           `yaml:"limit,omitempty"`
	MinRelevance  float64       `yaml:"min_relevance,omitempty"`

	// MaxRelatedDepth bounds connection-graph expansion when a recall
	// request sets includeRelated.
	MaxRelatedDepth int `yaml:"max_related_depth,omitempty"`

	// CacheTTLSeconds configures the optional per-query result cache.
	// Zero disables caching.
	CacheTTLSeconds int64 `yaml:"cache_ttl_seconds,omitempty"`
}

func (c *RecallConfig) SetDefaults() {
	if c.HybridWeights.Vector == 0 && c.HybridWeights.Text == 0 {
		c.HybridWeights.Vector = 0.7
		c.HybridWeights.Text = 0.3
	}
	if c.HybridWeights.Temporal == 0 && c.HybridWeights.Procedural == 0 {
		c.HybridWeights.Temporal = 0.5
		c.HybridWeights.Procedural = 0.5
	}
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.MaxRelatedDepth <= 0 {
		c.MaxRelatedDepth = 2
	}
}

func (c *RecallConfig) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("recall.limit must be positive")
	}
	if c.MinRelevance < 0 {
		return fmt.Errorf("recall.min_relevance must be >= 0")
	}
	return nil
}

// ============================================================================
// EXTRACTION
// ============================================================================

// ExtractionConfig configures the ExtractionOrchestrator's batching and
// cost-reduction sampling (spec §4.7, §6).
type ExtractionConfig struct {
	MaxBatchSize      int     `yaml:"max_batch_size,omitempty"`
	MinBatchSize      int     `yaml:"min_batch_size,omitempty"`
	TimeoutMinutes    float64 `yaml:"timeout_minutes,omitempty"`
	ExtractionRate    float64 `yaml:"extraction_rate,omitempty"`
	MinMessageLength  int     `yaml:"min_message_length,omitempty"`
}

func (c *ExtractionConfig) SetDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 10
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 1
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = 5
	}
	if c.ExtractionRate <= 0 {
		c.ExtractionRate = 0.2
	}
	if c.MinMessageLength <= 0 {
		c.MinMessageLength = 8
	}
}

func (c *ExtractionConfig) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("extraction.max_batch_size must be positive")
	}
	if c.MinBatchSize <= 0 || c.MinBatchSize > c.MaxBatchSize {
		return fmt.Errorf("extraction.min_batch_size must be in (0, max_batch_size]")
	}
	if c.ExtractionRate < 0 || c.ExtractionRate > 1 {
		return fmt.Errorf("extraction.extraction_rate must be in [0, 1]")
	}
	return nil
}
