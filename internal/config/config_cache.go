package config

import "time"

// CacheConfig configures the response cache (internal/engine/cache.go).
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}
