package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource/postgres"
	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/config"
	"github.com/anishjain94/db-optimizer/pkg/database"
	"github.com/anishjain94/db-optimizer/pkg/handlers"
	"github.com/anishjain94/db-optimizer/pkg/llm"
	"github.com/anishjain94/db-optimizer/pkg/logging"
	"github.com/anishjain94/db-optimizer/pkg/mcp"
	"github.com/anishjain94/db-optimizer/pkg/mcp/tools"
	"github.com/anishjain94/db-optimizer/pkg/middleware"
	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("db_host", cfg.Database.Host),
		zap.Int("db_port", cfg.Database.Port),
		zap.String("db_name", cfg.Database.Database),
		zap.String("db_schema", cfg.Database.Schema),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to target database",
			zap.String("dsn", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	store, err := newCacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache store", zap.Error(err))
	}

	adapter := postgres.NewAdapter(db.Pool, cfg.Database.Schema, logger)

	provider := schema.NewContextProvider(adapter, store, schema.ProviderConfig{
		SampleRowLimit: cfg.SampleRowLimit,
		Workers:        cfg.WorkerPoolSize,
		BuildTimeout:   cfg.Timeouts.Introspection(),
	}, logger)

	generator, err := llm.NewGenerator(&llm.Config{
		Provider:    cfg.LLM.Provider,
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create SQL generator", zap.Error(err))
	}

	validator := services.NewQueryValidator(logger)
	generation := services.NewSQLGenerationService(generator, logger)
	naturalQuery := services.NewNaturalQueryService(provider, generation, validator, adapter, cfg.Timeouts, logger)
	analyzer := services.NewQueryAnalyzer(provider, logger)
	optimizer := services.NewQueryOptimizer(provider, validator, adapter, cfg.Timeouts, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(naturalQuery, analyzer, optimizer, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(provider, logger).RegisterRoutes(mux)
	handlers.NewCacheHandler(provider, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("db-optimizer", cfg.Version, logger)
	tools.RegisterAll(mcpServer.MCP(), &tools.ToolDeps{
		NaturalQuery: naturalQuery,
		Analyzer:     analyzer,
		Optimizer:    optimizer,
		Provider:     provider,
		Logger:       logger,
	}, cfg.Version)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.RequestLogger(logger)(middleware.RequestMetrics()(mux))

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler: handler,
	}

	go func() {
		logger.Info("Starting db-optimizer",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
}

// newLogger builds a zap logger from the configured environment and level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var logConfig zap.Config
	if cfg.Env == "local" {
		logConfig = zap.NewDevelopmentConfig()
	} else {
		logConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logConfig.Level = level

	return logConfig.Build()
}

// newCacheStore selects the cache backend. The context bounds the memory
// store's sweep goroutine and the Redis connection check.
func newCacheStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if !cfg.Cache.Enabled {
		logger.Info("Schema caching disabled; every lookup rebuilds context")
		return cache.NewDisabled(), nil
	}

	if cfg.Cache.Backend == "redis" {
		client, err := database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(client, ttlsFromConfig(cfg), logger, cache.WithPrefix(cfg.Cache.Prefix)), nil
	}

	return cache.NewMemory(ctx, ttlsFromConfig(cfg), logger), nil
}

func ttlsFromConfig(cfg *config.Config) cache.TTLs {
	return cache.TTLs{
		Schema:        time.Duration(cfg.Cache.TTL.SchemaSeconds) * time.Second,
		Relationships: time.Duration(cfg.Cache.TTL.RelationshipsSeconds) * time.Second,
		Statistics:    time.Duration(cfg.Cache.TTL.StatisticsSeconds) * time.Second,
		SampleData:    time.Duration(cfg.Cache.TTL.SampleDataSeconds) * time.Second,
		FullContext:   time.Duration(cfg.Cache.TTL.FullContextSeconds) * time.Second,
	}
}
