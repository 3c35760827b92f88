// Package config loads the agent's configuration from YAML with defaults
// resolved once at load time. Environment references in the file
// (${VAR} syntax) are expanded before parsing so secrets stay out of
// checked-in configs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML parsing of Go duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AgentConfig controls the execution loop.
type AgentConfig struct {
	SystemPrompt   string   `yaml:"system_prompt"`
	Model          string   `yaml:"model"`
	MaxIterations  int      `yaml:"max_iterations"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    float32  `yaml:"temperature"`
	ToolTimeout    Duration `yaml:"tool_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	ParallelTools  bool     `yaml:"parallel_tools"`
}

// CircuitConfig controls the circuit breaker.
type CircuitConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	ResetTimeout     Duration `yaml:"reset_timeout"`
}

// RetryConfig controls backoff.
type RetryConfig struct {
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	JitterFactor float64  `yaml:"jitter_factor"`
}

// BulkheadConfig controls concurrency admission.
type BulkheadConfig struct {
	MaxConcurrent int      `yaml:"max_concurrent"`
	MaxQueue      int      `yaml:"max_queue"`
	QueueWait     Duration `yaml:"queue_wait"`
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ResilienceConfig groups the resilience primitives.
type ResilienceConfig struct {
	Circuit   CircuitConfig   `yaml:"circuit"`
	Retry     RetryConfig     `yaml:"retry"`
	Bulkhead  BulkheadConfig  `yaml:"bulkhead"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	DedupTTL  Duration        `yaml:"dedup_ttl"`
}

// CompactionConfig controls history compaction.
type CompactionConfig struct {
	Strategy                    string `yaml:"strategy"`
	MaxTokens                   int    `yaml:"max_tokens"`
	ReserveTokens               int    `yaml:"reserve_tokens"`
	MinMessagesBeforeCompaction int    `yaml:"min_messages_before_compaction"`
	PreserveRecentCount         int    `yaml:"preserve_recent_count"`
}

// PersistenceConfig controls the run store.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Config is the full agent configuration.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Compaction  CompactionConfig  `yaml:"compaction"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Model:          "default",
			MaxIterations:  10,
			MaxTokens:      4096,
			Temperature:    0.3,
			ToolTimeout:    Duration(30 * time.Second),
			RequestTimeout: Duration(2 * time.Minute),
		},
		Resilience: ResilienceConfig{
			Circuit: CircuitConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				ResetTimeout:     Duration(30 * time.Second),
			},
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: Duration(100 * time.Millisecond),
				MaxDelay:     Duration(10 * time.Second),
				Multiplier:   2.0,
				JitterFactor: 0.1,
			},
			Bulkhead: BulkheadConfig{
				MaxConcurrent: 4,
				MaxQueue:      8,
				QueueWait:     Duration(30 * time.Second),
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 2,
				Burst:             4,
			},
			DedupTTL: Duration(5 * time.Minute),
		},
		Compaction: CompactionConfig{
			Strategy:                    "sliding_window",
			MaxTokens:                   8000,
			ReserveTokens:               1000,
			MinMessagesBeforeCompaction: 6,
			PreserveRecentCount:         4,
		},
		Persistence: PersistenceConfig{
			Enabled: false,
			DBPath:  "agent_runs.db",
		},
	}
}

// Load reads path, expands ${VAR} environment references, and unmarshals
// over the defaults, so omitted keys keep their default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be positive, got %d", c.Agent.MaxTokens)
	}
	if c.Resilience.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.circuit.failure_threshold must be positive, got %d",
			c.Resilience.Circuit.FailureThreshold)
	}
	if c.Resilience.Retry.MaxRetries < 0 {
		return fmt.Errorf("resilience.retry.max_retries must not be negative, got %d",
			c.Resilience.Retry.MaxRetries)
	}
	if c.Resilience.Bulkhead.MaxConcurrent <= 0 {
		return fmt.Errorf("resilience.bulkhead.max_concurrent must be positive, got %d",
			c.Resilience.Bulkhead.MaxConcurrent)
	}
	switch c.Compaction.Strategy {
	case "sliding_window", "semantic_compression", "hierarchical", "importance_based":
	default:
		return fmt.Errorf("compaction.strategy %q is not one of sliding_window, semantic_compression, hierarchical, importance_based",
			c.Compaction.Strategy)
	}
	if c.Compaction.MaxTokens <= c.Compaction.ReserveTokens {
		return fmt.Errorf("compaction.max_tokens (%d) must exceed reserve_tokens (%d)",
			c.Compaction.MaxTokens, c.Compaction.ReserveTokens)
	}
	if c.Persistence.Enabled && c.Persistence.DBPath == "" {
		return fmt.Errorf("persistence.db_path is required when persistence is enabled")
	}
	return nil
}
