package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/config"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/database"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/embedding"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/handlers"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/mcp"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/middleware"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/services"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/source"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.Bool("odoo_configured", cfg.Odoo.IsConfigured()),
		zap.Bool("embeddings", cfg.Embedding.IsAvailable()))

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cat, err := openCatalog(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	batchSize := cfg.VectorStore.BatchSize
	boost := boostConfig(cfg.GraphBoost)
	status := services.NewSyncStatusService(store, batchSize, cfg.Cascade.ConcurrencyLimit, logger)
	graphContext := services.NewGraphContextService(store, boost, logger)
	graphBuild := services.NewGraphBuildService(cat, store, status, graphContext, logger)

	toolDeps := mcp.ToolDeps{
		Version: cfg.Version,
		Catalog: cat,
		Graph: &tools.GraphToolDeps{
			Store:        store,
			GraphContext: graphContext,
			GraphBuild:   graphBuild,
			Boost:        boost,
		},
	}

	if cfg.Odoo.IsConfigured() {
		cascade, err := newCascade(cfg, cat, store, status, logger)
		if err != nil {
			return err
		}
		toolDeps.Sync = &tools.SyncToolDeps{Cascade: cascade}
	} else {
		logger.Warn("Odoo is not configured; cascade_sync is disabled")
	}

	mcpServer := mcp.NewServer("ekaya-fkgraph", cfg.Version, logger)
	mcpServer.RegisterTools(toolDeps)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, cat, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-fkgraph", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// openStore opens the configured point store. The postgres backend applies
// migrations before returning.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory vector store; points are lost on restart")
		return vectorstore.NewMemoryStore(), nil

	case config.BackendSQLite:
		store, err := vectorstore.OpenSQLite(cfg.VectorStore.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		}, logger)
		if err != nil {
			return nil, err
		}
		sqlDB := db.SQLDB()
		defer sqlDB.Close()
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			db.Close()
			return nil, err
		}
		return &closingStore{Store: vectorstore.NewPostgresStore(db.Pool, logger), db: db}, nil

	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// closingStore releases the connection pool with the store.
type closingStore struct {
	vectorstore.Store
	db *database.DB
}

func (s *closingStore) Close() error {
	err := s.Store.Close()
	s.db.Close()
	return err
}

// openCatalog loads a YAML catalog and seeds its SchemaPoints into the store,
// or reads the catalog back from the store when no file is configured.
func openCatalog(ctx context.Context, cfg *config.Config, store vectorstore.Store, logger *zap.Logger) (catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.NewCachedCatalog(catalog.NewStoreCatalog(store, logger)), nil
	}

	yamlCatalog, err := catalog.LoadYAML(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	n, err := catalog.Seed(ctx, store, yamlCatalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to seed schema points: %w", err)
	}
	logger.Info("Loaded model catalog", zap.String("path", cfg.CatalogPath), zap.Int("schema_points", n))
	return yamlCatalog, nil
}

func newCascade(
	cfg *config.Config,
	cat catalog.Catalog,
	store vectorstore.Store,
	status services.SyncStatusService,
	logger *zap.Logger,
) (services.CascadeSyncService, error) {
	odoo, err := source.NewOdooClient(source.OdooConfig{
		URL:       config.ResolveURLForDocker(cfg.Odoo.URL),
		DB:        cfg.Odoo.DB,
		Username:  cfg.Odoo.Username,
		Password:  cfg.Odoo.Password,
		VerifySSL: !cfg.Odoo.InsecureSkipVerify,
		Timeout:   cfg.Odoo.Timeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create odoo client: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.IsAvailable() {
		openAI, err := embedding.NewOpenAIEmbedder(embedding.Config{
			Endpoint:  config.ResolveURLForDocker(cfg.Embedding.BaseURL),
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			BatchSize: cfg.Embedding.BatchSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = openAI
	}

	syncer := services.NewModelSyncService(cat, odoo, store, embedder, cfg.VectorStore.BatchSize, logger)
	return services.NewCascadeSyncService(cat, status, syncer, services.CascadeOptions{
		MaxDepth:         cfg.Cascade.MaxDepth,
		ConcurrencyLimit: cfg.Cascade.ConcurrencyLimit,
		Timeout:          cfg.Cascade.Timeout(),
	}, logger), nil
}

func boostConfig(c config.GraphBoostConfig) services.BoostConfig {
	boost := services.DefaultBoostConfig()
	boost.MaxBoost = c.MaxBoost
	boost.OutgoingWeight = c.OutgoingWeight
	boost.IncomingWeight = c.IncomingWeight
	boost.HubDegreeThreshold = c.HubDegreeThreshold
	boost.HubBoostMultiplier = c.HubBoostMultiplier
	boost.CardinalityWeights[models.CardinalityOneToOne] = c.OneToOneWeight
	boost.CardinalityWeights[models.CardinalityOneToFew] = c.OneToFewWeight
	boost.CardinalityWeights[models.CardinalityOneToMany] = c.OneToManyWeight
	return boost
}
