package cache

import "time"

// CacheConfig holds configuration for the response cache.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool `mapstructure:"enabled"`

	// FactorsTTL is the TTL for GET /factors responses.
	FactorsTTL time.Duration `mapstructure:"factors_ttl"`

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int `mapstructure:"max_size"`
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:    true,
		FactorsTTL: 10 * time.Minute,
		MaxSize:    100,
	}
}
