package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp writes config.yaml (when content is non-empty) into a temp dir
// and makes it the working directory for the test.
func chdirTemp(t *testing.T, content string) {
	t.Helper()
	tmpDir := t.TempDir()
	if content != "" {
		if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirTemp(t, `
port: "3450"
env: "test"
vector_store:
  backend: "postgres"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
odoo:
  url: "https://erp.example.com"
  db: "prod"
  username: "sync-bot"
`)

	// Clear env vars that might interfere with test
	os.Unsetenv("PGHOST")
	os.Unsetenv("VECTOR_STORE_BACKEND")

	// Set env vars to override YAML values
	t.Setenv("PORT", "4450")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ODOO_DB", "staging")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4450" {
		t.Errorf("expected Port=4450 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Odoo.DB != "staging" {
		t.Errorf("expected Odoo.DB=staging (from env), got %s", cfg.Odoo.DB)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// YAML values are used where no env var is set
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.VectorStore.Backend != BackendPostgres {
		t.Errorf("expected VectorStore.Backend=postgres (from yaml), got %s", cfg.VectorStore.Backend)
	}
	if cfg.Odoo.Username != "sync-bot" {
		t.Errorf("expected Odoo.Username=sync-bot (from yaml), got %s", cfg.Odoo.Username)
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	chdirTemp(t, "")
	os.Unsetenv("PORT")
	os.Unsetenv("VECTOR_STORE_BACKEND")
	os.Unsetenv("CASCADE_MAX_DEPTH")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() without config.yaml failed: %v", err)
	}

	if cfg.Port != "3450" {
		t.Errorf("expected default Port=3450, got %s", cfg.Port)
	}
	if cfg.VectorStore.Backend != BackendMemory {
		t.Errorf("expected default backend memory, got %s", cfg.VectorStore.Backend)
	}
	if cfg.VectorStore.BatchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", cfg.VectorStore.BatchSize)
	}
}

func TestLoad_MissingConfigFileReadsEnv(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("VECTOR_STORE_BACKEND", "sqlite")
	t.Setenv("VECTOR_STORE_SQLITE_PATH", "/var/lib/fkgraph/points.db")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.VectorStore.Backend != BackendSQLite {
		t.Errorf("expected backend sqlite (from env), got %s", cfg.VectorStore.Backend)
	}
	if cfg.VectorStore.SQLitePath != "/var/lib/fkgraph/points.db" {
		t.Errorf("expected sqlite path from env, got %s", cfg.VectorStore.SQLitePath)
	}
}

func TestLoad_GraphAndCascadeDefaults(t *testing.T) {
	chdirTemp(t, `
env: "test"
`)
	for _, name := range []string{
		"GRAPH_BOOST_MAX", "GRAPH_BOOST_OUTGOING_WEIGHT", "GRAPH_BOOST_INCOMING_WEIGHT",
		"GRAPH_BOOST_HUB_DEGREE_THRESHOLD", "GRAPH_BOOST_HUB_MULTIPLIER",
		"CASCADE_MAX_DEPTH", "CASCADE_CONCURRENCY_LIMIT", "CASCADE_TIMEOUT_SECONDS",
	} {
		os.Unsetenv(name)
	}

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	b := cfg.GraphBoost
	if b.MaxBoost != 0.2 || b.OutgoingWeight != 1.0 || b.IncomingWeight != 0.5 {
		t.Errorf("unexpected boost weights: %+v", b)
	}
	if b.HubDegreeThreshold != 10 || b.HubBoostMultiplier != 1.3 {
		t.Errorf("unexpected hub settings: %+v", b)
	}
	if b.OneToOneWeight != 1.2 || b.OneToFewWeight != 1.0 || b.OneToManyWeight != 0.8 {
		t.Errorf("unexpected cardinality weights: %+v", b)
	}

	if cfg.Cascade.MaxDepth != 3 {
		t.Errorf("expected default MaxDepth=3, got %d", cfg.Cascade.MaxDepth)
	}
	if cfg.Cascade.ConcurrencyLimit != 4 {
		t.Errorf("expected default ConcurrencyLimit=4, got %d", cfg.Cascade.ConcurrencyLimit)
	}
	if cfg.Cascade.Timeout() != 0 {
		t.Errorf("expected no default timeout, got %s", cfg.Cascade.Timeout())
	}
	if cfg.Odoo.Timeout() != 30*time.Second {
		t.Errorf("expected default Odoo timeout 30s, got %s", cfg.Odoo.Timeout())
	}
}

func TestLoad_CascadeFromEnv(t *testing.T) {
	chdirTemp(t, `
cascade:
  max_depth: 2
  concurrency_limit: 8
`)
	t.Setenv("CASCADE_MAX_DEPTH", "5")
	t.Setenv("CASCADE_TIMEOUT_SECONDS", "90")
	os.Unsetenv("CASCADE_CONCURRENCY_LIMIT")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Cascade.MaxDepth != 5 {
		t.Errorf("expected MaxDepth=5 (from env), got %d", cfg.Cascade.MaxDepth)
	}
	if cfg.Cascade.ConcurrencyLimit != 8 {
		t.Errorf("expected ConcurrencyLimit=8 (from yaml), got %d", cfg.Cascade.ConcurrencyLimit)
	}
	if cfg.Cascade.Timeout() != 90*time.Second {
		t.Errorf("expected Timeout=90s, got %s", cfg.Cascade.Timeout())
	}
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	// A password in YAML is ignored (yaml:"-")
	chdirTemp(t, `
odoo:
  url: "https://erp.example.com"
  password: "from-yaml"
embedding:
  base_url: "http://localhost:11434/v1"
  api_key: "from-yaml"
`)
	os.Unsetenv("ODOO_PASSWORD")
	t.Setenv("EMBEDDING_API_KEY", "sk-from-env")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Odoo.Password != "" {
		t.Errorf("expected Odoo password to be ignored in yaml, got %q", cfg.Odoo.Password)
	}
	if cfg.Embedding.APIKey != "sk-from-env" {
		t.Errorf("expected embedding key from env, got %q", cfg.Embedding.APIKey)
	}
	if !cfg.Embedding.IsAvailable() {
		t.Error("expected embedding to be available")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VectorStore: VectorStoreConfig{Backend: BackendMemory, BatchSize: 100},
			Odoo:        OdooConfig{TimeoutSeconds: 30},
			GraphBoost: GraphBoostConfig{
				MaxBoost: 0.2, OutgoingWeight: 1, IncomingWeight: 0.5,
				HubDegreeThreshold: 10, HubBoostMultiplier: 1.3,
				OneToOneWeight: 1.2, OneToFewWeight: 1, OneToManyWeight: 0.8,
			},
			Cascade: CascadeConfig{MaxDepth: 3, ConcurrencyLimit: 4},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "qdrant" }, "vector_store.backend"},
		{"sqlite without path", func(c *Config) { c.VectorStore.Backend = BackendSQLite }, "sqlite_path"},
		{"zero batch size", func(c *Config) { c.VectorStore.BatchSize = 0 }, "batch_size"},
		{"unbounded depth", func(c *Config) { c.Cascade.MaxDepth = 0 }, "max_depth"},
		{"zero concurrency", func(c *Config) { c.Cascade.ConcurrencyLimit = 0 }, "concurrency_limit"},
		{"negative timeout", func(c *Config) { c.Cascade.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"negative weight", func(c *Config) { c.GraphBoost.IncomingWeight = -0.5 }, "incoming_weight"},
		{"negative hub threshold", func(c *Config) { c.GraphBoost.HubDegreeThreshold = -1 }, "hub_degree_threshold"},
		{"zero odoo timeout", func(c *Config) { c.Odoo.TimeoutSeconds = 0 }, "odoo.timeout_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	chdirTemp(t, `
vector_store:
  backend: "qdrant"
`)
	os.Unsetenv("VECTOR_STORE_BACKEND")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "fk", SSLMode: "require"}

	want := "host=db port=5433 user=u password=p dbname=fk sslmode=require"
	if got := c.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestOdooConfig_IsConfigured(t *testing.T) {
	if (&OdooConfig{URL: "https://erp.example.com"}).IsConfigured() {
		t.Error("expected URL without DB to be unconfigured")
	}
	if !(&OdooConfig{URL: "https://erp.example.com", DB: "prod"}).IsConfigured() {
		t.Error("expected URL and DB to be configured")
	}
}
