package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads path (if present), applies defaults for every key in spec.md
// §6, then overrides secrets/DSNs from the environment (optionally via a
// .env file), following the teacher's loader.go convention of env values
// taking precedence over file contents for anything secret.
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	var cfg Config
	// Boolean defaults are set before unmarshalling: yaml leaves absent keys
	// untouched, so an explicit false in the file still wins.
	cfg.Consolidation.Enabled, cfg.Forgetting.Enabled, cfg.Synthesizer.Enabled = true, true, true
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Embedding.Dim == 0 {
		cfg.Embedding.Dim = 256
	}
	if cfg.Embedding.MaxDim == 0 {
		cfg.Embedding.MaxDim = 1024
	}
	defaultBreaker(&cfg.Embedding.Breaker)

	if cfg.WorkingMemory.TTLSeconds == 0 {
		cfg.WorkingMemory.TTLSeconds = 600
	}
	if cfg.WorkingMemory.MaxItems == 0 {
		cfg.WorkingMemory.MaxItems = 100
	}

	if cfg.Consolidation.IntervalMS == 0 {
		cfg.Consolidation.IntervalMS = 60_000
	}
	if cfg.Consolidation.ScoreThreshold == 0 {
		cfg.Consolidation.ScoreThreshold = 0.3
	}
	if cfg.Consolidation.MinAgeMS == 0 {
		cfg.Consolidation.MinAgeMS = 30_000
	}

	if cfg.Forgetting.IntervalMS == 0 {
		cfg.Forgetting.IntervalMS = 3_600_000
	}
	if cfg.Forgetting.Threshold == 0 {
		cfg.Forgetting.Threshold = 0.1
	}
	if cfg.Forgetting.BatchSize == 0 {
		cfg.Forgetting.BatchSize = 1000
	}

	if cfg.Synthesizer.IntervalMS == 0 {
		cfg.Synthesizer.IntervalMS = 300_000
	}
	if cfg.Synthesizer.MinClusterSize == 0 {
		cfg.Synthesizer.MinClusterSize = 3
	}
	if cfg.Synthesizer.SimilarityThreshold == 0 {
		cfg.Synthesizer.SimilarityThreshold = 0.75
	}
	if cfg.Synthesizer.MaxSynthesesPerRun == 0 {
		cfg.Synthesizer.MaxSynthesesPerRun = 5
	}

	if cfg.ActivityTracker.InactivityThresholdHours == 0 {
		cfg.ActivityTracker.InactivityThresholdHours = 24
	}

	if cfg.InteractionConsolidation.BatchSize == 0 {
		cfg.InteractionConsolidation.BatchSize = 20
	}
	if cfg.InteractionConsolidation.MinInteractions == 0 {
		cfg.InteractionConsolidation.MinInteractions = 5
	}
	if cfg.InteractionConsolidation.MinAgeMinutes == 0 {
		cfg.InteractionConsolidation.MinAgeMinutes = 5
	}

	if cfg.Database.Store.Backend == "" {
		cfg.Database.Store.Backend = "memory"
	}
	if cfg.Database.Graph.Backend == "" {
		cfg.Database.Graph.Backend = "memory"
	}
	if cfg.Database.Cache.Backend == "" {
		cfg.Database.Cache.Backend = "memory"
	}
	if cfg.Database.Cache.TTL == 0 {
		cfg.Database.Cache.TTL = 60
	}

	if cfg.Telemetry.Backend == "" {
		cfg.Telemetry.Backend = "log"
	}
	if cfg.Telemetry.Topic == "" {
		cfg.Telemetry.Topic = "memory.events"
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-3-5-haiku-latest"
	}
	if cfg.LLM.HighPriorityTimeoutSeconds == 0 {
		cfg.LLM.HighPriorityTimeoutSeconds = 30
	}
	if cfg.LLM.LowPriorityTimeoutSeconds == 0 {
		cfg.LLM.LowPriorityTimeoutSeconds = 120
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "memnexus"
	}
}

func defaultBreaker(b *CircuitBreakerConfig) {
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.WindowSeconds == 0 {
		b.WindowSeconds = 60
	}
	if b.CooldownSeconds == 0 {
		b.CooldownSeconds = 30
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_DATABASE_DSN")); v != "" {
		cfg.Database.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_GRAPH_DSN")); v != "" {
		cfg.Database.Graph.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_CACHE_ADDR")); v != "" {
		cfg.Database.Cache.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_EMBEDDING_PROVIDER_A_URL")); v != "" {
		cfg.Embedding.ProviderA.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_EMBEDDING_PROVIDER_B_URL")); v != "" {
		cfg.Embedding.ProviderB.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_EMBEDDING_PROVIDER_B_API_KEY")); v != "" {
		cfg.Embedding.ProviderB.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_KAFKA_BROKERS")); v != "" {
		cfg.Telemetry.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("MEMNEXUS_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.Endpoint = v
		cfg.Observability.Enabled = true
	}
}
