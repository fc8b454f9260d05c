// Package config provides configuration management for the AMP engine,
// handling environment variables, .env files, and runtime settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration bundle threaded through
// every component at startup.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	IndexModel IndexModelConfig `yaml:"index_model" json:"index_model"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Query     QueryConfig     `yaml:"query" json:"query"`
	Leases    LeaseConfig     `yaml:"leases" json:"leases"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         int    `yaml:"port" json:"port"`
	BindAddress  string `yaml:"bind_address" json:"bind_address"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" json:"write_timeout_seconds"`
}

// StoreConfig selects and configures the object/relationship store backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" json:"database_url"`
	DBUser      string `yaml:"db_user" json:"db_user"`
	DBPass      string `yaml:"-" json:"-"`
	BatchMaxSize int   `yaml:"batch_max_size" json:"batch_max_size"`
	OpTimeoutSeconds int `yaml:"op_timeout_seconds" json:"op_timeout_seconds"`
}

// EmbeddingConfig selects and configures C1's embedding provider.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider" json:"provider"`
	APIKey              string `yaml:"-" json:"-"`
	URL                 string `yaml:"url" json:"url"`
	Model               string `yaml:"model" json:"model"`
	Dimension           int    `yaml:"dimension" json:"dimension"`
	MaxConcurrency      int    `yaml:"max_concurrency" json:"max_concurrency"`
	BatchTimeoutSeconds int    `yaml:"batch_timeout_seconds" json:"batch_timeout_seconds"`
	CacheSize           int    `yaml:"cache_size" json:"cache_size"`
	MaxEmbeddingDimension int  `yaml:"max_embedding_dimension" json:"max_embedding_dimension"`
}

// IndexModelConfig configures the AI filelog summarizer, kept separate
// from the embedding provider per the external interface contract.
type IndexModelConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	APIKey   string `yaml:"-" json:"-"`
	Model    string `yaml:"model" json:"model"`
}

// IndexingConfig controls the indexing pipeline's worker pool and
// exclude rules.
type IndexingConfig struct {
	Workers            int      `yaml:"index_workers" json:"index_workers"`
	RespectGitignore    bool     `yaml:"index_respect_gitignore" json:"index_respect_gitignore"`
	ExcludePatterns     []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	ChunkTargetTokens   int      `yaml:"chunk_target_tokens" json:"chunk_target_tokens"`
	ChunkOverlapTokens  int      `yaml:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`
	WatchMode           bool     `yaml:"watch_mode" json:"watch_mode"`
}

// CacheConfig holds settings for the episodic cache's block lifecycle
// thresholds. internal/cache does not read these fields: its block
// cap, auto-close size and dedup threshold are package constants.
type CacheConfig struct {
	MaxBlocksPerScope int     `yaml:"max_blocks_per_scope" json:"max_blocks_per_scope"`
	AutoCloseTokens   int     `yaml:"auto_close_tokens" json:"auto_close_tokens"`
	DedupThreshold    float64 `yaml:"dedup_threshold" json:"dedup_threshold"`
	SummaryMaxTokens  int     `yaml:"summary_max_tokens" json:"summary_max_tokens"`
}

// QueryConfig holds settings for the hybrid query engine's defaults.
// internal/query does not read these fields: its limits and RRF
// constant are package constants.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`
	RRFConstant  int `yaml:"rrf_constant" json:"rrf_constant"`
	MaxGraphDepth int `yaml:"max_graph_depth" json:"max_graph_depth"`
}

// LeaseConfig controls the coordination service's backend.
type LeaseConfig struct {
	Backend         string `yaml:"backend" json:"backend"`
	RedisURL        string `yaml:"redis_url" json:"redis_url"`
	FileLockDir     string `yaml:"file_lock_dir" json:"file_lock_dir"`
	DefaultTTLSeconds int  `yaml:"default_ttl_seconds" json:"default_ttl_seconds"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8090,
			BindAddress:         "0.0.0.0",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Store: StoreConfig{
			DatabaseURL:      "memory",
			BatchMaxSize:     256,
			OpTimeoutSeconds: 5,
		},
		Embedding: EmbeddingConfig{
			Provider:              "none",
			Model:                 "",
			Dimension:             1536,
			MaxConcurrency:        4,
			BatchTimeoutSeconds:   10,
			CacheSize:             2048,
			MaxEmbeddingDimension: 4096,
		},
		IndexModel: IndexModelConfig{
			Provider: "none",
		},
		Indexing: IndexingConfig{
			Workers:          4,
			RespectGitignore: true,
			ExcludePatterns: []string{
				".git", ".hg", ".svn", "node_modules", "vendor",
				"dist", "build", "target", ".venv", "__pycache__",
			},
			ChunkTargetTokens:  500,
			ChunkOverlapTokens: 100,
			WatchMode:          false,
		},
		Cache: CacheConfig{
			MaxBlocksPerScope: 20,
			AutoCloseTokens:   1800,
			DedupThreshold:    0.92,
			SummaryMaxTokens:  200,
		},
		Query: QueryConfig{
			DefaultLimit:  5,
			MaxLimit:      50,
			RRFConstant:   60,
			MaxGraphDepth: 10,
		},
		Leases: LeaseConfig{
			Backend:           "memory",
			DefaultTTLSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			JSON:  true,
		},
	}
}

// LoadConfig builds a Config from a .env file (if present) layered with
// process environment variables, falling back to DefaultConfig values.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	loadServerConfig(cfg)
	loadStoreConfig(cfg)
	loadEmbeddingConfig(cfg)
	loadIndexModelConfig(cfg)
	loadIndexingConfig(cfg)
	loadCacheConfig(cfg)
	loadQueryConfig(cfg)
	loadLeaseConfig(cfg)
	loadLoggingConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadServerConfig(c *Config) {
	c.Server.Port = getIntEnvWithDefault("AMP_PORT", c.Server.Port)
	c.Server.BindAddress = getStringEnvWithDefault("AMP_BIND_ADDRESS", c.Server.BindAddress)
	c.Server.ReadTimeoutSeconds = getIntEnvWithDefault("AMP_READ_TIMEOUT_SECONDS", c.Server.ReadTimeoutSeconds)
	c.Server.WriteTimeoutSeconds = getIntEnvWithDefault("AMP_WRITE_TIMEOUT_SECONDS", c.Server.WriteTimeoutSeconds)
}

func loadStoreConfig(c *Config) {
	c.Store.DatabaseURL = getStringEnvWithDefault("AMP_DATABASE_URL", c.Store.DatabaseURL)
	c.Store.DBUser = getStringEnvWithDefault("AMP_DB_USER", c.Store.DBUser)
	c.Store.DBPass = getStringEnvWithDefault("AMP_DB_PASS", c.Store.DBPass)
	c.Store.BatchMaxSize = getIntEnvWithDefault("AMP_BATCH_MAX_SIZE", c.Store.BatchMaxSize)
	c.Store.OpTimeoutSeconds = getIntEnvWithDefault("AMP_STORE_OP_TIMEOUT_SECONDS", c.Store.OpTimeoutSeconds)
}

func loadEmbeddingConfig(c *Config) {
	c.Embedding.Provider = getStringEnvWithDefault("AMP_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.APIKey = getStringEnvWithDefault("AMP_EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.URL = getStringEnvWithDefault("AMP_EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.Model = getStringEnvWithDefault("AMP_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getIntEnvWithDefault("AMP_EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Embedding.MaxConcurrency = getIntEnvWithDefault("AMP_EMBEDDING_MAX_CONCURRENCY", c.Embedding.MaxConcurrency)
	c.Embedding.BatchTimeoutSeconds = getIntEnvWithDefault("AMP_EMBEDDING_BATCH_TIMEOUT_SECONDS", c.Embedding.BatchTimeoutSeconds)
	c.Embedding.CacheSize = getIntEnvWithDefault("AMP_EMBEDDING_CACHE_SIZE", c.Embedding.CacheSize)
	c.Embedding.MaxEmbeddingDimension = getIntEnvWithDefault("AMP_MAX_EMBEDDING_DIMENSION", c.Embedding.MaxEmbeddingDimension)
}

func loadIndexModelConfig(c *Config) {
	c.IndexModel.Provider = getStringEnvWithDefault("AMP_INDEX_MODEL_PROVIDER", c.IndexModel.Provider)
	c.IndexModel.APIKey = getStringEnvWithDefault("AMP_INDEX_MODEL_API_KEY", c.IndexModel.APIKey)
	c.IndexModel.Model = getStringEnvWithDefault("AMP_INDEX_MODEL_MODEL", c.IndexModel.Model)
}

func loadIndexingConfig(c *Config) {
	c.Indexing.Workers = getIntEnvWithDefault("AMP_INDEX_WORKERS", c.Indexing.Workers)
	c.Indexing.RespectGitignore = getBoolEnvWithDefault("AMP_INDEX_RESPECT_GITIGNORE", c.Indexing.RespectGitignore)
	c.Indexing.ChunkTargetTokens = getIntEnvWithDefault("AMP_CHUNK_TARGET_TOKENS", c.Indexing.ChunkTargetTokens)
	c.Indexing.ChunkOverlapTokens = getIntEnvWithDefault("AMP_CHUNK_OVERLAP_TOKENS", c.Indexing.ChunkOverlapTokens)
	c.Indexing.WatchMode = getBoolEnvWithDefault("AMP_INDEX_WATCH_MODE", c.Indexing.WatchMode)
	if raw := os.Getenv("AMP_INDEX_EXCLUDE_PATTERNS"); raw != "" {
		c.Indexing.ExcludePatterns = strings.Split(raw, ",")
	}
}

func loadCacheConfig(c *Config) {
	c.Cache.MaxBlocksPerScope = getIntEnvWithDefault("AMP_CACHE_MAX_BLOCKS_PER_SCOPE", c.Cache.MaxBlocksPerScope)
	c.Cache.AutoCloseTokens = getIntEnvWithDefault("AMP_CACHE_AUTO_CLOSE_TOKENS", c.Cache.AutoCloseTokens)
	c.Cache.SummaryMaxTokens = getIntEnvWithDefault("AMP_CACHE_SUMMARY_MAX_TOKENS", c.Cache.SummaryMaxTokens)
	if raw := os.Getenv("AMP_CACHE_DEDUP_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.Cache.DedupThreshold = v
		}
	}
}

func loadQueryConfig(c *Config) {
	c.Query.DefaultLimit = getIntEnvWithDefault("AMP_QUERY_DEFAULT_LIMIT", c.Query.DefaultLimit)
	c.Query.MaxLimit = getIntEnvWithDefault("AMP_QUERY_MAX_LIMIT", c.Query.MaxLimit)
	c.Query.RRFConstant = getIntEnvWithDefault("AMP_QUERY_RRF_CONSTANT", c.Query.RRFConstant)
	c.Query.MaxGraphDepth = getIntEnvWithDefault("AMP_QUERY_MAX_GRAPH_DEPTH", c.Query.MaxGraphDepth)
}

func loadLeaseConfig(c *Config) {
	c.Leases.Backend = getStringEnvWithDefault("AMP_LEASE_BACKEND", c.Leases.Backend)
	c.Leases.RedisURL = getStringEnvWithDefault("AMP_LEASE_REDIS_URL", c.Leases.RedisURL)
	c.Leases.FileLockDir = getStringEnvWithDefault("AMP_LEASE_FILE_LOCK_DIR", c.Leases.FileLockDir)
	c.Leases.DefaultTTLSeconds = getIntEnvWithDefault("AMP_LEASE_DEFAULT_TTL_SECONDS", c.Leases.DefaultTTLSeconds)
}

func loadLoggingConfig(c *Config) {
	c.Logging.Level = getStringEnvWithDefault("AMP_LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getBoolEnvWithDefault("AMP_LOG_JSON", c.Logging.JSON)
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1"
}

// Validate checks invariants the rest of the engine assumes hold.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIndexing(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateQuery(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateIndexing() error {
	if c.Indexing.Workers < 1 || c.Indexing.Workers > 32 {
		return fmt.Errorf("config: indexing.workers must be in [1,32], got %d", c.Indexing.Workers)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxBlocksPerScope < 1 {
		return fmt.Errorf("config: cache.max_blocks_per_scope must be >= 1")
	}
	if c.Cache.DedupThreshold <= 0 || c.Cache.DedupThreshold > 1 {
		return fmt.Errorf("config: cache.dedup_threshold must be in (0,1]")
	}
	return nil
}

func (c *Config) validateQuery() error {
	if c.Query.MaxGraphDepth < 1 || c.Query.MaxGraphDepth > 10 {
		return fmt.Errorf("config: query.max_graph_depth must be in [1,10], got %d", c.Query.MaxGraphDepth)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("config: query.default_limit must be in [1,max_limit]")
	}
	return nil
}
