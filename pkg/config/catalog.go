package config

import "fmt"

// CatalogSource selects where tool profiles are loaded from.
type CatalogSource string

const (
	// CatalogSourceSQL loads profiles from the relational store
	// (tools, tool_capabilities, tool_patterns, tool_intents tables).
	CatalogSourceSQL CatalogSource = "sql"

	// CatalogSourceFS loads profiles from a filesystem corpus of YAML
	// documents, one profile per file.
	CatalogSourceFS CatalogSource = "fs"
)

// CatalogConfig configures the tool catalog loader.
type CatalogConfig struct {
	Source CatalogSource

	// Dir is the profile corpus directory (fs source only).
	Dir string
}

// DefaultCatalogConfig returns the built-in catalog defaults.
func DefaultCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		Source: CatalogSourceFS,
		Dir:    "./deploy/tools",
	}
}

// LoadCatalogConfigFromEnv builds the catalog config from environment
// variables.
func LoadCatalogConfigFromEnv() *CatalogConfig {
	def := DefaultCatalogConfig()
	return &CatalogConfig{
		Source: CatalogSource(envString("CATALOG_SOURCE", string(def.Source))),
		Dir:    envString("CATALOG_DIR", def.Dir),
	}
}

// Validate checks the config for values that cannot work at runtime.
func (c *CatalogConfig) Validate() error {
	switch c.Source {
	case CatalogSourceSQL:
		return nil
	case CatalogSourceFS:
		if c.Dir == "" {
			return fmt.Errorf("catalog config: dir is required for fs source")
		}
		return nil
	default:
		return fmt.Errorf("catalog config: unknown source %q (must be 'sql' or 'fs')", c.Source)
	}
}
