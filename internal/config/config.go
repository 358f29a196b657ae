// Package config loads analyzer configuration from YAML with defaults
// suitable for large legacy repositories.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls discovery limits, worker pools, timeouts and caching.
type Config struct {
	// MaxDepth bounds recursive module/dependency discovery.
	MaxDepth int `yaml:"max_depth"`
	// MaxFileSize is the per-file byte cutoff; larger files are skipped
	// with a diagnostic.
	MaxFileSize int64 `yaml:"max_file_size_bytes"`
	// FileWorkers bounds the per-file parse/enrich pool.
	FileWorkers int `yaml:"file_workers"`
	// RepoWorkers bounds concurrent repository jobs (caps peak memory).
	RepoWorkers int `yaml:"repo_workers"`
	// FileTimeout abandons a stalled single-file parse.
	FileTimeout time.Duration `yaml:"file_timeout"`
	// RepoTimeout fails the whole job but keeps the partial batch.
	RepoTimeout time.Duration `yaml:"repo_timeout"`
	// ParseCacheSize is the LRU entry cap for the parse cache.
	ParseCacheSize int `yaml:"parse_cache_size"`
	// InternalPrefixes are package roots treated as intra-organization
	// dependencies during discovery.
	InternalPrefixes []string `yaml:"internal_prefixes"`
	// DBPath is the SQLite file for emitted batches ("" = default cache dir).
	DBPath string `yaml:"db_path"`
	// DiagnosticSample caps the worst-per-category sample in reports.
	DiagnosticSample int `yaml:"diagnostic_sample"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxDepth:         3,
		MaxFileSize:      2 << 20, // 2 MiB
		FileWorkers:      runtime.NumCPU(),
		RepoWorkers:      2,
		FileTimeout:      30 * time.Second,
		RepoTimeout:      30 * time.Minute,
		ParseCacheSize:   4096,
		InternalPrefixes: nil,
		DiagnosticSample: 5,
	}
}

// UnmarshalYAML applies a YAML document over the current values. Absent
// keys keep whatever was already set; timeouts accept duration strings
// like "45s" or "10m".
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxDepth         *int     `yaml:"max_depth"`
		MaxFileSize      *int64   `yaml:"max_file_size_bytes"`
		FileWorkers      *int     `yaml:"file_workers"`
		RepoWorkers      *int     `yaml:"repo_workers"`
		FileTimeout      *string  `yaml:"file_timeout"`
		RepoTimeout      *string  `yaml:"repo_timeout"`
		ParseCacheSize   *int     `yaml:"parse_cache_size"`
		InternalPrefixes []string `yaml:"internal_prefixes"`
		DBPath           *string  `yaml:"db_path"`
		DiagnosticSample *int     `yaml:"diagnostic_sample"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxDepth != nil {
		c.MaxDepth = *raw.MaxDepth
	}
	if raw.MaxFileSize != nil {
		c.MaxFileSize = *raw.MaxFileSize
	}
	if raw.FileWorkers != nil {
		c.FileWorkers = *raw.FileWorkers
	}
	if raw.RepoWorkers != nil {
		c.RepoWorkers = *raw.RepoWorkers
	}
	if raw.FileTimeout != nil {
		d, err := time.ParseDuration(*raw.FileTimeout)
		if err != nil {
			return fmt.Errorf("config: file_timeout: %w", err)
		}
		c.FileTimeout = d
	}
	if raw.RepoTimeout != nil {
		d, err := time.ParseDuration(*raw.RepoTimeout)
		if err != nil {
			return fmt.Errorf("config: repo_timeout: %w", err)
		}
		c.RepoTimeout = d
	}
	if raw.ParseCacheSize != nil {
		c.ParseCacheSize = *raw.ParseCacheSize
	}
	if raw.InternalPrefixes != nil {
		c.InternalPrefixes = raw.InternalPrefixes
	}
	if raw.DBPath != nil {
		c.DBPath = *raw.DBPath
	}
	if raw.DiagnosticSample != nil {
		c.DiagnosticSample = *raw.DiagnosticSample
	}
	return nil
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would disable required safety limits.
func (c *Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("config: max_depth must be >= 1, got %d", c.MaxDepth)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("config: max_file_size_bytes must be >= 1, got %d", c.MaxFileSize)
	}
	if c.FileWorkers < 1 {
		return fmt.Errorf("config: file_workers must be >= 1, got %d", c.FileWorkers)
	}
	if c.RepoWorkers < 1 {
		return fmt.Errorf("config: repo_workers must be >= 1, got %d", c.RepoWorkers)
	}
	if c.ParseCacheSize < 1 {
		return fmt.Errorf("config: parse_cache_size must be >= 1, got %d", c.ParseCacheSize)
	}
	return nil
}
