// Package config loads docindex configuration from a YAML file with
// DOCINDEX_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig holds indexing defaults.
type IndexConfig struct {
	// Extensions is the default allow-list; empty indexes every file.
	Extensions []string `yaml:"extensions"`
}

// SearchConfig controls the result cache and document preview paging.
type SearchConfig struct {
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	PageChars int           `yaml:"pageChars"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultPath is the config file read when none is given, if it exists.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".docindex", "config.yaml")
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults for a single-user install.
func defaultConfig() *Config {
	dbPath := "docindex.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".docindex", "docindex.db")
	}
	return &Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Index: IndexConfig{
			Extensions: []string{"txt", "md", "log", "csv", "json", "xml", "pdf", "docx"},
		},
		Search: SearchConfig{
			CacheSize: 1000,
			CacheTTL:  5 * time.Minute,
			PageChars: 2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// applyEnvOverrides reads DOCINDEX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCINDEX_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v, ok := os.LookupEnv("DOCINDEX_EXTENSIONS"); ok {
		cfg.Index.Extensions = splitList(v)
	}
	if v := os.Getenv("DOCINDEX_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.CacheSize = n
		}
	}
	if v := os.Getenv("DOCINDEX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.CacheTTL = d
		}
	}
	if v := os.Getenv("DOCINDEX_PAGE_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.PageChars = n
		}
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCINDEX_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DOCINDEX_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("DOCINDEX_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("config: search.cacheSize must be positive, got %d", c.Search.CacheSize)
	}
	if c.Search.CacheTTL < 0 {
		return fmt.Errorf("config: search.cacheTTL must not be negative")
	}
	if c.Search.PageChars <= 0 {
		return fmt.Errorf("config: search.pageChars must be positive, got %d", c.Search.PageChars)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
