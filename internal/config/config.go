// Package config loads LegalVault configuration from a TOML or YAML file,
// an optional .env file, and LEGALVAULT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// Config is the top-level application configuration.
type Config struct {
	DataDir   string          `toml:"data_dir" yaml:"data_dir"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	Vector    VectorConfig    `toml:"vector" yaml:"vector"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Ingest    IngestConfig    `toml:"ingest" yaml:"ingest"`
	Retrieval RetrievalConfig `toml:"retrieval" yaml:"retrieval"`
	Audit     AuditConfig     `toml:"audit" yaml:"audit"`
	Cache     CacheConfig     `toml:"cache" yaml:"cache"`
	TextIndex TextIndexConfig `toml:"text_index" yaml:"text_index"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	// Provider is "vault" (the /embed API), "ollama", "openai" or "none".
	Provider     string   `toml:"provider" yaml:"provider"`
	BaseURL      string   `toml:"base_url" yaml:"base_url"`
	Model        string   `toml:"model" yaml:"model"`
	APIKey       string   `toml:"api_key" yaml:"api_key"`
	Dimensions   int      `toml:"dimensions" yaml:"dimensions"`
	Timeout      Duration `toml:"timeout" yaml:"timeout"`
	BatchTimeout Duration `toml:"batch_timeout" yaml:"batch_timeout"`
	MaxBatchSize int      `toml:"max_batch_size" yaml:"max_batch_size"`
	// RequestsPerSecond throttles calls to the service (0 = unlimited).
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// Backend is "qdrant", "weaviate", "pgvector", "memory" or "none".
	Backend    string   `toml:"backend" yaml:"backend"`
	URL        string   `toml:"url" yaml:"url"`
	APIKey     string   `toml:"api_key" yaml:"api_key"`
	Timeout    Duration `toml:"timeout" yaml:"timeout"`
	Collection string   `toml:"collection" yaml:"collection"`
}

// StorageConfig selects the document metadata store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver" yaml:"driver"`
	// DSN is the PostgreSQL connection string. Also used by pgvector.
	DSN string `toml:"dsn" yaml:"dsn"`
}

// IngestConfig controls chunking and the worker pool.
type IngestConfig struct {
	Workers        int  `toml:"workers" yaml:"workers"`
	ChunkSize      int  `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int  `toml:"chunk_overlap" yaml:"chunk_overlap"`
	CommitInterval int  `toml:"commit_interval" yaml:"commit_interval"`
	ContentHashID  bool `toml:"content_hash_identity" yaml:"content_hash_identity"`
	RetryAttempts  int  `toml:"retry_attempts" yaml:"retry_attempts"`
	// DeferVectorizing persists text only and leaves embedding to the
	// vectorize queue.
	DeferVectorizing bool `toml:"defer_vectorizing" yaml:"defer_vectorizing"`
}

// RetrievalConfig sets retrieval defaults.
type RetrievalConfig struct {
	Limit          int     `toml:"limit" yaml:"limit"`
	ScoreThreshold float64 `toml:"score_threshold" yaml:"score_threshold"`
	ExcerptLength  int     `toml:"excerpt_length" yaml:"excerpt_length"`
}

// AuditConfig selects the audit collaborator.
type AuditConfig struct {
	// Sink is "store" (same database as documents), "kafka", "log" or "none".
	Sink    string   `toml:"sink" yaml:"sink"`
	Brokers []string `toml:"brokers" yaml:"brokers"`
	Topic   string   `toml:"topic" yaml:"topic"`
}

// CacheConfig enables the Redis query-embedding cache.
type CacheConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Addr     string   `toml:"addr" yaml:"addr"`
	Password string   `toml:"password" yaml:"password"`
	DB       int      `toml:"db" yaml:"db"`
	TTL      Duration `toml:"ttl" yaml:"ttl"`
}

// TextIndexConfig enables the bleve keyword index.
type TextIndexConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Logging: LoggingConfig{Level: "warn", Format: "plain"},
		Embedding: EmbeddingConfig{
			Provider:     "vault",
			BaseURL:      "http://localhost:8004",
			Dimensions:   1024,
			Timeout:      Duration{30 * time.Second},
			BatchTimeout: Duration{60 * time.Second},
			MaxBatchSize: 32,
		},
		Vector: VectorConfig{
			Backend:    "qdrant",
			URL:        "http://localhost:6333",
			Timeout:    Duration{30 * time.Second},
			Collection: domain.CollectionLegalDocuments,
		},
		Storage: StorageConfig{Driver: "sqlite"},
		Ingest: IngestConfig{
			Workers:        4,
			ChunkSize:      20000,
			ChunkOverlap:   500,
			CommitInterval: 10,
			ContentHashID:  true,
			RetryAttempts:  3,
		},
		Retrieval: RetrievalConfig{
			Limit:          5,
			ScoreThreshold: 0.7,
			ExcerptLength:  500,
		},
		Audit:   AuditConfig{Sink: "store", Topic: "legalvault.audit"},
		Cache:   CacheConfig{Addr: "localhost:6379", TTL: Duration{24 * time.Hour}},
		Metrics: MetricsConfig{Addr: ":9464"},
	}
}

// Load reads path (TOML or YAML by extension) over the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse toml config: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Ingest.Workers < 1 || c.Ingest.Workers > 32 {
		problems = append(problems, fmt.Sprintf("ingest.workers must be 1..32, got %d", c.Ingest.Workers))
	}
	if c.Ingest.ChunkSize <= 0 {
		problems = append(problems, "ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		problems = append(problems, "ingest.chunk_overlap must be >= 0 and < chunk_size")
	}
	if c.Ingest.CommitInterval <= 0 {
		problems = append(problems, "ingest.commit_interval must be positive")
	}
	if c.Embedding.Provider != "none" && c.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding.dimensions must be positive")
	}
	if c.Embedding.MaxBatchSize <= 0 {
		problems = append(problems, "embedding.max_batch_size must be positive")
	}
	if !oneOf(c.Embedding.Provider, "vault", "ollama", "openai", "none") {
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if !oneOf(c.Vector.Backend, "qdrant", "weaviate", "pgvector", "memory", "none") {
		problems = append(problems, fmt.Sprintf("unknown vector.backend %q", c.Vector.Backend))
	}
	if !oneOf(c.Storage.Driver, "sqlite", "postgres") {
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	if (c.Storage.Driver == "postgres" || c.Vector.Backend == "pgvector") && c.Storage.DSN == "" {
		problems = append(problems, "storage.dsn is required for postgres and pgvector")
	}
	if !oneOf(c.Audit.Sink, "store", "kafka", "log", "none") {
		problems = append(problems, fmt.Sprintf("unknown audit.sink %q", c.Audit.Sink))
	}
	if c.Audit.Sink == "kafka" && len(c.Audit.Brokers) == 0 {
		problems = append(problems, "audit.brokers is required for the kafka sink")
	}
	if c.Retrieval.Limit <= 0 {
		problems = append(problems, "retrieval.limit must be positive")
	}
	if math.IsNaN(c.Retrieval.ScoreThreshold) || c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		problems = append(problems, fmt.Sprintf("retrieval.score_threshold must be 0..1, got %v", c.Retrieval.ScoreThreshold))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	if dir := os.Getenv("LEGALVAULT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".legalvault"
	}
	return filepath.Join(home, ".legalvault")
}

// applyEnv overrides selected fields from LEGALVAULT_* variables.
func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("LEGALVAULT_" + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv("LEGALVAULT_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := os.LookupEnv("LEGALVAULT_" + key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("LEGALVAULT_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_URL", &c.Embedding.BaseURL)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	num("EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)
	num("EMBEDDING_MAX_BATCH", &c.Embedding.MaxBatchSize)
	str("VECTOR_BACKEND", &c.Vector.Backend)
	str("VECTOR_URL", &c.Vector.URL)
	str("VECTOR_API_KEY", &c.Vector.APIKey)
	str("VECTOR_COLLECTION", &c.Vector.Collection)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("DATABASE_URL", &c.Storage.DSN)
	num("WORKERS", &c.Ingest.Workers)
	num("CHUNK_SIZE", &c.Ingest.ChunkSize)
	num("CHUNK_OVERLAP", &c.Ingest.ChunkOverlap)
	num("RETRIEVAL_LIMIT", &c.Retrieval.Limit)
	flt("SCORE_THRESHOLD", &c.Retrieval.ScoreThreshold)
	str("AUDIT_SINK", &c.Audit.Sink)
	if v, ok := os.LookupEnv("LEGALVAULT_KAFKA_BROKERS"); ok && v != "" {
		c.Audit.Brokers = strings.Split(v, ",")
	}
	boolean("CACHE_ENABLED", &c.Cache.Enabled)
	str("REDIS_ADDR", &c.Cache.Addr)
	str("REDIS_PASSWORD", &c.Cache.Password)
	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_ADDR", &c.Metrics.Addr)
}
