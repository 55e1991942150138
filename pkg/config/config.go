package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the fkgraph server.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// CatalogPath points at a YAML model/field catalog. When empty the
	// catalog is read from SchemaPoints in the vector store.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-default:""`

	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Database configuration (PostgreSQL), used by the postgres backend
	Database DatabaseConfig `yaml:"database"`

	Odoo      OdooConfig      `yaml:"odoo"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	GraphBoost GraphBoostConfig `yaml:"graph_boost"`
	Cascade    CascadeConfig    `yaml:"cascade"`
}

// Vector store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// VectorStoreConfig selects and tunes the point store.
type VectorStoreConfig struct {
	Backend    string `yaml:"backend" env:"VECTOR_STORE_BACKEND" env-default:"memory"`
	SQLitePath string `yaml:"sqlite_path" env:"VECTOR_STORE_SQLITE_PATH" env-default:"fkgraph.db"`
	// BatchSize bounds point upserts and existence lookups.
	BatchSize int `yaml:"batch_size" env:"VECTOR_STORE_BATCH_SIZE" env-default:"100"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"fkgraph"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"fkgraph"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// OdooConfig holds the source system connection.
type OdooConfig struct {
	URL            string `yaml:"url" env:"ODOO_URL" env-default:""`
	DB             string `yaml:"db" env:"ODOO_DB" env-default:""`
	Username       string `yaml:"username" env:"ODOO_USERNAME" env-default:""`
	Password       string `yaml:"-" env:"ODOO_PASSWORD"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"ODOO_TIMEOUT_SECONDS" env-default:"30"`

	// InsecureSkipVerify disables TLS certificate checks for self-signed instances.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"ODOO_INSECURE_SKIP_VERIFY" env-default:"false"`
}

// IsConfigured returns true if enough is set to attempt a connection.
func (c *OdooConfig) IsConfigured() bool {
	return c.URL != "" && c.DB != ""
}

// Timeout returns the request timeout as a duration.
func (c *OdooConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmbeddingConfig holds the OpenAI-compatible embedding endpoint.
// An empty BaseURL disables embeddings; DataPoints are then stored without vectors.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	Model     string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey    string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	BatchSize int    `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE" env-default:"64"`
}

// IsAvailable returns true if an embedding endpoint is configured.
func (c *EmbeddingConfig) IsAvailable() bool {
	return c.BaseURL != ""
}

// GraphBoostConfig holds the graph ranking knobs.
type GraphBoostConfig struct {
	MaxBoost           float64 `yaml:"max_boost" env:"GRAPH_BOOST_MAX" env-default:"0.2"`
	OutgoingWeight     float64 `yaml:"outgoing_weight" env:"GRAPH_BOOST_OUTGOING_WEIGHT" env-default:"1.0"`
	IncomingWeight     float64 `yaml:"incoming_weight" env:"GRAPH_BOOST_INCOMING_WEIGHT" env-default:"0.5"`
	HubDegreeThreshold int     `yaml:"hub_degree_threshold" env:"GRAPH_BOOST_HUB_DEGREE_THRESHOLD" env-default:"10"`
	HubBoostMultiplier float64 `yaml:"hub_boost_multiplier" env:"GRAPH_BOOST_HUB_MULTIPLIER" env-default:"1.3"`

	// Per-cardinality weights applied to outgoing references.
	OneToOneWeight  float64 `yaml:"one_to_one_weight" env:"GRAPH_BOOST_ONE_TO_ONE_WEIGHT" env-default:"1.2"`
	OneToFewWeight  float64 `yaml:"one_to_few_weight" env:"GRAPH_BOOST_ONE_TO_FEW_WEIGHT" env-default:"1.0"`
	OneToManyWeight float64 `yaml:"one_to_many_weight" env:"GRAPH_BOOST_ONE_TO_MANY_WEIGHT" env-default:"0.8"`
}

// CascadeConfig holds the cascade sync defaults. Per-call options override them.
type CascadeConfig struct {
	MaxDepth         int `yaml:"max_depth" env:"CASCADE_MAX_DEPTH" env-default:"3"`
	ConcurrencyLimit int `yaml:"concurrency_limit" env:"CASCADE_CONCURRENCY_LIMIT" env-default:"4"`
	// TimeoutSeconds bounds a whole run; 0 means no timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"CASCADE_TIMEOUT_SECONDS" env-default:"0"`
}

// Timeout returns the run timeout as a duration.
func (c *CascadeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: every setting has an env var and a default.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail late or silently.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case BackendMemory, BackendPostgres:
	case BackendSQLite:
		if c.VectorStore.SQLitePath == "" {
			return fmt.Errorf("vector_store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown vector_store.backend %q (want memory, postgres or sqlite)", c.VectorStore.Backend)
	}
	if c.VectorStore.BatchSize < 1 {
		return fmt.Errorf("vector_store.batch_size must be >= 1, got %d", c.VectorStore.BatchSize)
	}

	if c.Cascade.MaxDepth < 1 {
		return fmt.Errorf("cascade.max_depth must be >= 1, got %d", c.Cascade.MaxDepth)
	}
	if c.Cascade.ConcurrencyLimit < 1 {
		return fmt.Errorf("cascade.concurrency_limit must be >= 1, got %d", c.Cascade.ConcurrencyLimit)
	}
	if c.Cascade.TimeoutSeconds < 0 {
		return fmt.Errorf("cascade.timeout_seconds must be >= 0, got %d", c.Cascade.TimeoutSeconds)
	}

	b := c.GraphBoost
	weights := map[string]float64{
		"max_boost":            b.MaxBoost,
		"outgoing_weight":      b.OutgoingWeight,
		"incoming_weight":      b.IncomingWeight,
		"hub_boost_multiplier": b.HubBoostMultiplier,
		"one_to_one_weight":    b.OneToOneWeight,
		"one_to_few_weight":    b.OneToFewWeight,
		"one_to_many_weight":   b.OneToManyWeight,
	}
	for name, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("graph_boost.%s must be a finite number >= 0, got %v", name, w)
		}
	}
	if b.HubDegreeThreshold < 0 {
		return fmt.Errorf("graph_boost.hub_degree_threshold must be >= 0, got %d", b.HubDegreeThreshold)
	}

	if c.Odoo.TimeoutSeconds < 1 {
		return fmt.Errorf("odoo.timeout_seconds must be >= 1, got %d", c.Odoo.TimeoutSeconds)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
