// Package config defines docindex configuration: defaults, layered loading
// (YAML file, then DOCINDEX_* environment variables) and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete docindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version" koanf:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir" koanf:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking" koanf:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings" koanf:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index" koanf:"index"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest" koanf:"ingest"`
	Search     SearchConfig     `yaml:"search" json:"search" koanf:"search"`
	Server     ServerConfig     `yaml:"server" json:"server" koanf:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch" koanf:"watch"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging" koanf:"logging"`
}

// ChunkingConfig configures the segmenter. Sizes are in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size" koanf:"size"`
	Overlap int `yaml:"overlap" json:"overlap" koanf:"overlap"`
}

// EmbeddingsConfig configures the embedding provider and the guard around it.
type EmbeddingsConfig struct {
	// Provider is one of static, openai, ollama.
	Provider   string `yaml:"provider" json:"provider" koanf:"provider"`
	Model      string `yaml:"model" json:"model" koanf:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" koanf:"dimensions"`

	// BaseURL overrides the OpenAI endpoint (Azure and compatible servers).
	BaseURL string `yaml:"base_url" json:"base_url" koanf:"base_url"`
	APIKey  string `yaml:"api_key" json:"-" koanf:"api_key"`

	// OllamaHost is used when Provider is ollama.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host" koanf:"ollama_host"`

	// Timeout bounds each embedding call. A timeout counts as a failure.
	Timeout    string `yaml:"timeout" json:"timeout" koanf:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries" koanf:"max_retries"`

	// RateLimit is requests per second toward the provider; 0 disables it.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" koanf:"rate_limit"`
	Burst     int     `yaml:"burst" json:"burst" koanf:"burst"`

	// CacheSize is the LRU capacity for repeated texts; 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size" koanf:"cache_size"`

	BreakerFailures int    `yaml:"breaker_failures" json:"breaker_failures" koanf:"breaker_failures"`
	BreakerReset    string `yaml:"breaker_reset" json:"breaker_reset" koanf:"breaker_reset"`
}

// IndexConfig selects the vector index implementation.
type IndexConfig struct {
	// Kind is flat (exact) or hnsw (approximate candidates, exact re-score).
	Kind     string `yaml:"kind" json:"kind" koanf:"kind"`
	M        int    `yaml:"m" json:"m" koanf:"m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search" koanf:"ef_search"`
}

// IngestConfig configures file ingestion.
type IngestConfig struct {
	Workers       int `yaml:"workers" json:"workers" koanf:"workers"`
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb" koanf:"max_file_size_mb"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit" koanf:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit" koanf:"max_limit"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	HTTPAddr    string   `yaml:"http_addr" json:"http_addr" koanf:"http_addr"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins" koanf:"cors_origins"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce" koanf:"debounce"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level" koanf:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb" koanf:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files" koanf:"max_files"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir(),
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "static",
			Model:           "text-embedding-3-small",
			Dimensions:      256,
			Timeout:         "30s",
			MaxRetries:      2,
			RateLimit:       0,
			Burst:           1,
			CacheSize:       1000,
			BreakerFailures: 5,
			BreakerReset:    "30s",
		},
		Index: IndexConfig{
			Kind:     "flat",
			M:        16,
			EfSearch: 64,
		},
		Ingest: IngestConfig{
			Workers:       4,
			MaxFileSizeMB: 50,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
			MaxLimit:     100,
		},
		Server: ServerConfig{
			HTTPAddr:    "127.0.0.1:8765",
			CORSOrigins: []string{"*"},
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultDataDir returns ~/.docindex, or a temp-dir fallback without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docindex")
	}
	return filepath.Join(home, ".docindex")
}

// DefaultConfigPath returns the config file location inside a data dir.
func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}

// DatabasePath returns the SQLite metadata database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "metadata.db")
}

// SnapshotPath returns the vector index snapshot path.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "vectors."+c.Index.Kind)
}

// EmbedTimeout returns the parsed per-call embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	return parseDuration(c.Embeddings.Timeout, 30*time.Second)
}

// BreakerReset returns the parsed circuit breaker reset timeout.
func (c *Config) BreakerReset() time.Duration {
	return parseDuration(c.Embeddings.BreakerReset, 30*time.Second)
}

// WatchDebounce returns the parsed watcher debounce window.
func (c *Config) WatchDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var (
	validProviders  = map[string]bool{"static": true, "openai": true, "ollama": true}
	validIndexKinds = map[string]bool{"flat": true, "hnsw": true}
	validLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d with size %d", c.Chunking.Overlap, c.Chunking.Size)
	}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static', 'openai' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if strings.EqualFold(c.Embeddings.Provider, "static") && c.Embeddings.Dimensions == 0 {
		return fmt.Errorf("embeddings.dimensions is required for the static provider")
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit must be non-negative, got %f", c.Embeddings.RateLimit)
	}
	if c.Embeddings.MaxRetries < 0 {
		return fmt.Errorf("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}
	if !validIndexKinds[strings.ToLower(c.Index.Kind)] {
		return fmt.Errorf("index.kind must be 'flat' or 'hnsw', got %q", c.Index.Kind)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
