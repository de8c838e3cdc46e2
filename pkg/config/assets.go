package config

import (
	"fmt"
	"time"
)

// AssetConfig configures the asset-service client, its cache, and its
// circuit breaker.
type AssetConfig struct {
	// ServiceURL is the asset inventory HTTP endpoint.
	ServiceURL string

	// FetchTimeout is the per-fetch deadline.
	FetchTimeout time.Duration

	// CacheTTL is how long a fetched snapshot stays valid.
	CacheTTL time.Duration

	// CacheSize is the LRU capacity (distinct query fingerprints).
	CacheSize int

	// DefaultLimit is the asset count requested when the caller does not
	// specify one.
	DefaultLimit int

	// BreakerThreshold is the consecutive-failure count that opens the
	// asset-service circuit breaker.
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open before a probe.
	BreakerCooldown time.Duration
}

// DefaultAssetConfig returns the built-in asset provider defaults.
func DefaultAssetConfig() *AssetConfig {
	return &AssetConfig{
		ServiceURL:       "http://localhost:8001",
		FetchTimeout:     5 * time.Second,
		CacheTTL:         time.Hour,
		CacheSize:        256,
		DefaultLimit:     100,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
	}
}

// LoadAssetConfigFromEnv builds the asset config from environment variables.
func LoadAssetConfigFromEnv() *AssetConfig {
	def := DefaultAssetConfig()
	return &AssetConfig{
		ServiceURL:       envString("ASSET_SERVICE_URL", def.ServiceURL),
		FetchTimeout:     envSeconds("ASSET_FETCH_TIMEOUT_S", def.FetchTimeout),
		CacheTTL:         envSeconds("ASSET_CACHE_TTL_S", def.CacheTTL),
		CacheSize:        envInt("ASSET_CACHE_SIZE", def.CacheSize),
		DefaultLimit:     envInt("ASSET_DEFAULT_LIMIT", def.DefaultLimit),
		BreakerThreshold: envInt("ASSET_BREAKER_THRESHOLD", def.BreakerThreshold),
		BreakerCooldown:  envSeconds("ASSET_BREAKER_COOLDOWN_S", def.BreakerCooldown),
	}
}

// Validate checks the config for values that cannot work at runtime.
func (c *AssetConfig) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("asset config: service URL is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("asset config: fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("asset config: cache size must be positive, got %d", c.CacheSize)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("asset config: cache TTL must be positive, got %v", c.CacheTTL)
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("asset config: default limit must be positive, got %d", c.DefaultLimit)
	}
	return nil
}
