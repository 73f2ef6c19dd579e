package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the abtest-go library.
type Config struct {
	// Experiment defaults applied when a test does not override them
	Experiments ExperimentsConfig `yaml:"experiments" validate:"required"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage,omitempty" validate:"omitempty"`

	// Scheduler configuration
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty" validate:"omitempty"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// ExperimentsConfig holds statistical defaults for new tests.
type ExperimentsConfig struct {
	// Confidence level for significance tests (e.g. 0.95)
	ConfidenceLevel float64 `yaml:"confidence_level" validate:"gt=0,lt=1"`

	// Statistical power target for sample-size planning (e.g. 0.8)
	Power float64 `yaml:"power" validate:"gt=0,lt=1"`

	// Minimum detectable effect in standardized units (Cohen's d)
	MinDetectableEffect float64 `yaml:"min_detectable_effect" validate:"gt=0"`

	// Clamp bounds for the planned per-variant sample size
	SampleSizeFloor   int `yaml:"sample_size_floor" validate:"min=1"`
	SampleSizeCeiling int `yaml:"sample_size_ceiling" validate:"gtefield=SampleSizeFloor"`

	// Minimum relative improvement (percent) for a winner to be declared
	MinImprovementPercent float64 `yaml:"min_improvement_percent" validate:"gt=0,lte=100"`

	// Fraction of max duration after which an inconclusive test is stopped
	MaxDurationFraction float64 `yaml:"max_duration_fraction" validate:"gt=0,lte=1"`

	// Tolerance (percentage points) when validating that weights sum to 100
	WeightTolerance float64 `yaml:"weight_tolerance" validate:"gte=0,lte=5"`

	// Default maximum test duration when a test does not set one
	DefaultMaxDuration time.Duration `yaml:"default_max_duration" validate:"min=0"`

	// Conclude automatically when an analysis recommends stopping
	AutoConclude bool `yaml:"auto_conclude"`
}

// StorageConfig holds repository configuration.
type StorageConfig struct {
	// Storage driver (sqlite or memory)
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite memory"`

	// Path to the SQLite database file
	Path string `yaml:"path,omitempty"`

	// Enable WAL mode for better concurrent performance
	EnableWAL bool `yaml:"enable_wal"`

	// Maximum number of connections
	MaxConnections int `yaml:"max_connections" validate:"min=0"`

	// Per-operation timeout for repository calls
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`

	// Retry configuration for idempotent repository operations
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds retry-specific configuration.
type RetryConfig struct {
	// Maximum number of retries
	MaxRetries int `yaml:"max_retries" validate:"min=0"`

	// Initial backoff duration
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"min=0"`

	// Maximum backoff duration
	MaxBackoff time.Duration `yaml:"max_backoff" validate:"min=0"`

	// Backoff multiplier
	BackoffMultiplier float64 `yaml:"backoff_multiplier" validate:"omitempty,min=1.0"`
}

// SchedulerConfig holds periodic-analysis configuration.
type SchedulerConfig struct {
	// Interval between analysis sweeps over running tests
	Interval time.Duration `yaml:"interval" validate:"min=0"`

	// Trigger an analysis every N accepted results (0 = disabled)
	AnalyzeEveryN int `yaml:"analyze_every_n" validate:"min=0"`

	// Maximum number of concurrent analyses per sweep
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`
}

// CacheConfig holds configuration for the concluded-test read cache.
type CacheConfig struct {
	// TTL for cached test records
	TTL time.Duration `yaml:"ttl" validate:"min=0"`

	// Maximum number of cached tests
	MaxEntries int `yaml:"max_entries" validate:"min=0"`

	// Cleanup interval for expired entries
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Log level (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Write console output to stderr instead of stdout
	UseStderr bool `yaml:"use_stderr"`

	// Sample rate for high-frequency events (0 = no sampling)
	SampleRate uint32 `yaml:"sample_rate"`
}

// Load reads a YAML configuration file, layering it over the defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
