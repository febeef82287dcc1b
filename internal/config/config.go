// Package config loads the YAML configuration file. A missing file is fatal
// at startup; individual options fall back to defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized option.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	PageRank PageRankConfig `yaml:"pagerank"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Git      GitConfig      `yaml:"git"`
	Impact   ImpactConfig   `yaml:"impact"`
}

// RedisConfig locates the store backend.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// IndexerConfig controls file selection.
type IndexerConfig struct {
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`
	MaxFileSize int64    `yaml:"maxFileSize"`
}

// PageRankConfig tunes the ranking pass.
type PageRankConfig struct {
	Damping    float64 `yaml:"damping"`
	Iterations int     `yaml:"iterations"`
	Tolerance  float64 `yaml:"tolerance"`
}

// WatcherConfig controls the file watcher.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounceMs"`
}

// GitConfig controls the git metadata provider.
type GitConfig struct {
	Enabled          bool   `yaml:"enabled"`
	HistoryDepth     int    `yaml:"historyDepth"`
	SampleWindowDays int    `yaml:"sampleWindowDays"`
	GitBinary        string `yaml:"gitBinary"`
}

// ImpactConfig lifts the risk-score thresholds out of the analysis code.
type ImpactConfig struct {
	CriticalThreshold float64 `yaml:"criticalThreshold"`
	HighThreshold     float64 `yaml:"highThreshold"`
	MediumThreshold   float64 `yaml:"mediumThreshold"`
}

// DefaultInclude is applied when indexer.include is empty.
var DefaultInclude = []string{
	"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.mjs", "**/*.cjs",
	"**/*.py", "**/*.go", "**/*.rs", "**/*.java",
	"**/*.c", "**/*.h", "**/*.cpp", "**/*.cc", "**/*.cxx", "**/*.hpp", "**/*.hxx",
}

// DefaultExclude is applied when indexer.exclude is empty.
var DefaultExclude = []string{
	"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**",
	"**/vendor/**", "**/target/**", "**/__pycache__/**", "**/.venv/**",
	"**/coverage/**", "**/out/**",
}

// Load reads the configuration file at path. The file must exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	// Environment override for the backend URL (container deployments).
	if url := os.Getenv("CODEATLAS_REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	return cfg, nil
}

// Default returns the built-in configuration (used by tests).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "codeatlas"
	}
	if len(c.Indexer.Include) == 0 {
		c.Indexer.Include = DefaultInclude
	}
	if len(c.Indexer.Exclude) == 0 {
		c.Indexer.Exclude = DefaultExclude
	}
	if c.Indexer.MaxFileSize <= 0 {
		c.Indexer.MaxFileSize = 1 << 20 // 1 MiB
	}
	if c.PageRank.Damping <= 0 || c.PageRank.Damping >= 1 {
		c.PageRank.Damping = 0.85
	}
	if c.PageRank.Iterations <= 0 {
		c.PageRank.Iterations = 30
	}
	if c.PageRank.Tolerance <= 0 {
		c.PageRank.Tolerance = 1e-6
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = 500
	}
	if c.Git.HistoryDepth <= 0 {
		c.Git.HistoryDepth = 200
	}
	if c.Git.SampleWindowDays <= 0 {
		c.Git.SampleWindowDays = 180
	}
	if c.Git.GitBinary == "" {
		c.Git.GitBinary = "git"
	}
	if c.Impact.CriticalThreshold <= 0 {
		c.Impact.CriticalThreshold = 100
	}
	if c.Impact.HighThreshold <= 0 {
		c.Impact.HighThreshold = 50
	}
	if c.Impact.MediumThreshold <= 0 {
		c.Impact.MediumThreshold = 20
	}
}

// Debounce returns the watcher debounce as a duration.
func (c *WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}
