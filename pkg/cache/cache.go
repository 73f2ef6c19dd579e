package cache

import (
	"time"
)

// Config holds cache configuration.
type Config struct {
	// Maximum number of entries (0 = unlimited)
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// Default TTL for cache entries (0 = no expiration)
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// Cleanup interval for expired entries
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// Stats contains cache performance statistics.
type Stats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Sets       int64     `json:"sets"`
	Deletes    int64     `json:"deletes"`
	Entries    int64     `json:"entries"`
	MaxEntries int64     `json:"max_entries"`
	LastAccess time.Time `json:"last_access"`
}
