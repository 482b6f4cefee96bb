package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Data        DataConfig        `json:"data"`
	Stores      StoresConfig      `json:"stores"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	Memory      MemoryConfig      `json:"memory"`
	Consolidate ConsolidateConfig `json:"consolidate"`
	Schedule    ScheduleConfig    `json:"schedule"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// DataConfig locates the on-disk state: task list, execution history,
// lock files and the deletion audit log.
type DataConfig struct {
	Dir string `json:"dir"`
}

type StoresConfig struct {
	Qdrant QdrantConfig `json:"qdrant"`
	Neo4j  Neo4jConfig  `json:"neo4j"`
	Redis  RedisConfig  `json:"redis"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type MemoryConfig struct {
	ChunkSize         int     `json:"chunk_size"`
	ChunkOverlap      int     `json:"chunk_overlap"`
	DefaultGraphScore float32 `json:"default_graph_score"`
	CacheTTLSeconds   int     `json:"cache_ttl_seconds"`
}

// CacheTTL returns the configured cache expiry as a duration.
func (m MemoryConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSeconds) * time.Second
}

type ConsolidateConfig struct {
	SampleLimit int  `json:"sample_limit"`
	WriteReport bool `json:"write_report"`
}

type ScheduleConfig struct {
	RunTimeoutSeconds int `json:"run_timeout_seconds"`
}

// RunTimeout returns the per-task execution timeout as a duration.
func (s ScheduleConfig) RunTimeout() time.Duration {
	return time.Duration(s.RunTimeoutSeconds) * time.Second
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, suitable for
// running against local services without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 7410
	}
	if c.Data.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Data.Dir = home + "/.recall"
	}
	if c.Stores.Qdrant.Host == "" {
		c.Stores.Qdrant.Host = "localhost"
	}
	if c.Stores.Qdrant.Port == 0 {
		c.Stores.Qdrant.Port = 6334
	}
	if c.Stores.Qdrant.Collection == "" {
		c.Stores.Qdrant.Collection = "recall"
	}
	if c.Stores.Neo4j.URI == "" {
		c.Stores.Neo4j.URI = "bolt://localhost:7687"
	}
	if c.Stores.Redis.URL == "" {
		c.Stores.Redis.URL = "redis://localhost:6379"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "api"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
	if c.Memory.ChunkSize == 0 {
		c.Memory.ChunkSize = 1000
	}
	if c.Memory.ChunkOverlap == 0 {
		c.Memory.ChunkOverlap = 200
	}
	if c.Memory.DefaultGraphScore == 0 {
		c.Memory.DefaultGraphScore = 0.3
	}
	if c.Memory.CacheTTLSeconds == 0 {
		c.Memory.CacheTTLSeconds = 3600
	}
	if c.Consolidate.SampleLimit == 0 {
		c.Consolidate.SampleLimit = 5000
	}
	if c.Schedule.RunTimeoutSeconds == 0 {
		c.Schedule.RunTimeoutSeconds = 600
	}
}

func (c *Config) validate() error {
	if c.Memory.ChunkOverlap >= c.Memory.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Memory.ChunkOverlap, c.Memory.ChunkSize)
	}
	if c.Memory.ChunkOverlap < 0 {
		return fmt.Errorf("config: chunk_overlap must not be negative")
	}
	return nil
}
