package config

import (
	"time"
)

// GetDefaultConfig returns the default configuration for abtest-go.
func GetDefaultConfig() *Config {
	return &Config{
		Experiments: getDefaultExperimentsConfig(),
		Storage:     getDefaultStorageConfig(),
		Scheduler:   getDefaultSchedulerConfig(),
		Cache:       getDefaultCacheConfig(),
		Logging:     getDefaultLoggingConfig(),
	}
}

// getDefaultExperimentsConfig returns default statistical settings.
func getDefaultExperimentsConfig() ExperimentsConfig {
	return ExperimentsConfig{
		ConfidenceLevel:       0.95,
		Power:                 0.80,
		MinDetectableEffect:   0.5,
		SampleSizeFloor:       30,
		SampleSizeCeiling:     100000,
		MinImprovementPercent: 5.0,
		MaxDurationFraction:   0.9,
		WeightTolerance:       0.1,
		DefaultMaxDuration:    14 * 24 * time.Hour,
		AutoConclude:          true,
	}
}

// getDefaultStorageConfig returns default repository settings.
func getDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:         "memory",
		Path:           "abtest.db",
		EnableWAL:      true,
		MaxConnections: 10,
		Timeout:        5 * time.Second,
		Retry: RetryConfig{
			MaxRetries:        3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// getDefaultSchedulerConfig returns default analysis-cadence settings.
func getDefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      time.Minute,
		AnalyzeEveryN: 0,
		MaxConcurrent: 4,
	}
}

// getDefaultCacheConfig returns default read-cache settings.
func getDefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:             time.Hour,
		MaxEntries:      1024,
		CleanupInterval: time.Minute,
	}
}

// getDefaultLoggingConfig returns default logging settings.
func getDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "INFO",
		UseStderr:  false,
		SampleRate: 0,
	}
}
