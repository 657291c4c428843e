// Package config handles the cache configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Limits holds the default page size for one endpoint.
type Limits struct {
	Limit int `yaml:"limit"`
}

// Data groups the per-endpoint page sizes.
type Data struct {
	Search       Limits `yaml:"search"`
	Details      Limits `yaml:"details"`
	Citations    Limits `yaml:"citations"`
	References   Limits `yaml:"references"`
	Author       Limits `yaml:"author"`
	AuthorPapers Limits `yaml:"author_papers"`
}

// Config is the cache configuration, loaded from a YAML file over the
// defaults. The API key may also come from the S2_API_KEY environment
// variable, which takes precedence at client construction.
type Config struct {
	CacheDir          string `yaml:"cache_dir"`
	APIKey            string `yaml:"api_key"`
	CacheBackend      string `yaml:"cache_backend"`
	CitationsCacheDir string `yaml:"citations_cache_dir"`
	ClientTimeout     int    `yaml:"client_timeout"` // seconds
	BatchSize         int    `yaml:"batch_size"`
	LogLevel          string `yaml:"log_level"`
	Data              Data   `yaml:"data"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		CacheDir:      filepath.Join(home, ".config", "s2cache"),
		CacheBackend:  "sqlite",
		ClientTimeout: 10,
		BatchSize:     500,
		LogLevel:      "info",
		Data: Data{
			Search:       Limits{Limit: 10},
			Details:      Limits{Limit: 100},
			Citations:    Limits{Limit: 100},
			References:   Limits{Limit: 100},
			Author:       Limits{Limit: 100},
			AuthorPapers: Limits{Limit: 100},
		},
	}
}

// Load reads a YAML config file and merges it over the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
