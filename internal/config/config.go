// Package config defines the engine's configuration surface: a YAML file
// unmarshalled into flat per-concern structs, with environment overrides
// for secrets, mirroring the teacher's internal/config package style.
package config

// EmbeddingConfig configures C2's provider chain and circuit breakers.
type EmbeddingConfig struct {
	Dim       int                     `yaml:"embedding_dim"`
	MaxDim    int                     `yaml:"max_dim"`
	ProviderA EmbeddingProviderConfig `yaml:"provider_a"`
	ProviderB EmbeddingProviderConfig `yaml:"provider_b"`
	Breaker   CircuitBreakerConfig    `yaml:"circuit_breaker"`
}

// EmbeddingProviderConfig describes one HTTP embedding endpoint.
type EmbeddingProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// CircuitBreakerConfig sets the failure threshold/window/cooldown for a
// single provider's breaker (spec.md §4.2, §6).
type CircuitBreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	WindowSeconds    float64 `yaml:"window_seconds"`
	CooldownSeconds  float64 `yaml:"cooldown_seconds"`
}

// WorkingMemoryConfig configures C6.
type WorkingMemoryConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxItems   int `yaml:"max_items"`
}

// ConsolidationConfig configures C13.
type ConsolidationConfig struct {
	Enabled        bool    `yaml:"enabled"`
	IntervalMS     int     `yaml:"interval_ms"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	MinAgeMS       int     `yaml:"min_age_ms"`
}

// ForgettingConfig configures C14.
type ForgettingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	IntervalMS int     `yaml:"interval_ms"`
	Threshold  float64 `yaml:"threshold"`
	BatchSize  int     `yaml:"batch_size"`
	DryRun     bool    `yaml:"dry_run"`
}

// SynthesizerConfig configures C15.
type SynthesizerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	IntervalMS          int     `yaml:"interval_ms"`
	MinClusterSize      int     `yaml:"min_cluster_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxSynthesesPerRun  int     `yaml:"max_syntheses_per_run"`
}

// ActivityTrackerConfig configures C4.
type ActivityTrackerConfig struct {
	InactivityThresholdHours int `yaml:"inactivity_threshold_hours"`
}

// InteractionConsolidationConfig configures the interaction-consolidator
// side-path of C13.
type InteractionConsolidationConfig struct {
	BatchSize       int `yaml:"batch_size"`
	MinInteractions int `yaml:"min_interactions"`
	MinAgeMinutes   int `yaml:"min_age_minutes"`
}

// DatabaseConfig mirrors the teacher's per-backend Backend/DSN shape
// (persistence/databases/factory.go's config.DBConfig).
type DatabaseConfig struct {
	Store StoreBackendConfig `yaml:"store"`
	Graph GraphBackendConfig `yaml:"graph"`
	Cache CacheBackendConfig `yaml:"cache"`
}

// StoreBackendConfig selects and configures the Engram Store backend.
type StoreBackendConfig struct {
	Backend          string `yaml:"backend"` // postgres | memory | qdrant
	DSN              string `yaml:"dsn"`
	QdrantDSN        string `yaml:"qdrant_dsn,omitempty"`
	QdrantCollection string `yaml:"qdrant_collection,omitempty"`
}

// GraphBackendConfig selects and configures the external graph client.
type GraphBackendConfig struct {
	Backend string `yaml:"backend"` // postgres | memory | none
	DSN     string `yaml:"dsn"`
}

// CacheBackendConfig configures C17's Redis-backed result cache.
type CacheBackendConfig struct {
	Backend string `yaml:"backend"` // redis | memory
	Addr    string `yaml:"addr"`
	TTL     int    `yaml:"ttl_seconds"`
}

// TelemetryConfig configures the §6 event sink.
type TelemetryConfig struct {
	Backend string   `yaml:"backend"` // kafka | log
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LLMConfig configures the completion provider used by C13's curator and
// C15's synthesizer.
type LLMConfig struct {
	APIKey                     string `yaml:"api_key"`
	Model                      string `yaml:"model"`
	HighPriorityTimeoutSeconds int    `yaml:"high_priority_timeout_seconds"`
	LowPriorityTimeoutSeconds  int    `yaml:"low_priority_timeout_seconds"`
}

// ObsConfig configures OpenTelemetry bootstrap (observability.InitOTel).
type ObsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Insecure       bool   `yaml:"insecure"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// NoveltyConfig toggles C7.
type NoveltyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the root configuration object, matching spec.md §6's
// "Recognised keys" list.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Embedding                EmbeddingConfig                 `yaml:"embedding"`
	WorkingMemory            WorkingMemoryConfig             `yaml:"working_memory"`
	Consolidation            ConsolidationConfig             `yaml:"consolidation"`
	Forgetting               ForgettingConfig                `yaml:"forgetting"`
	Synthesizer              SynthesizerConfig               `yaml:"synthesizer"`
	ActivityTracker          ActivityTrackerConfig           `yaml:"activity_tracker"`
	InteractionConsolidation InteractionConsolidationConfig  `yaml:"interaction_consolidation"`
	Novelty                  NoveltyConfig                   `yaml:"novelty"`
	Database                 DatabaseConfig                  `yaml:"database"`
	Telemetry                TelemetryConfig                 `yaml:"telemetry"`
	LLM                      LLMConfig                       `yaml:"llm"`
	Observability            ObsConfig                       `yaml:"observability"`
}
