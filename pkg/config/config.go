// Package config provides typed configuration for every component of the
// pipeline: LLM gateway, asset provider, catalog loader, and orchestrator.
// Each concern has a Default constructor, an env loader, and a Validate
// pass; startup fails on values that cannot work at runtime.
package config

import "fmt"

// Config is the root configuration assembled at startup.
type Config struct {
	LLM      *LLMConfig
	Assets   *AssetConfig
	Pipeline *PipelineConfig
	Catalog  *CatalogConfig
}

// Load assembles the full configuration from the environment. The caller
// is expected to have loaded any .env file (godotenv) beforehand.
func Load() (*Config, error) {
	cfg := &Config{
		LLM:      LoadLLMConfigFromEnv(),
		Assets:   LoadAssetConfigFromEnv(),
		Pipeline: LoadPipelineConfigFromEnv(),
		Catalog:  LoadCatalogConfigFromEnv(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates every section and returns the first failure.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := c.Assets.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}
