package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/agent"
	"github.com/voidhound/recall/internal/api"
	"github.com/voidhound/recall/internal/audit"
	"github.com/voidhound/recall/internal/config"
	"github.com/voidhound/recall/internal/consolidate"
	"github.com/voidhound/recall/internal/embedding"
	"github.com/voidhound/recall/internal/memory"
	"github.com/voidhound/recall/internal/schedule"
	"github.com/voidhound/recall/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting recall...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/recall.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config file, using defaults", zap.String("path", cfgPath))
			cfg = config.Default()
		} else {
			logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
		}
	} else {
		logger.Info("Config loaded", zap.String("path", cfgPath))
	}

	// Embedding provider
	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "local":
		embedder = embedding.NewHashProvider(cfg.Embedding.Dimension)
	default:
		embedder = embedding.NewAPIProvider(embedding.Config{
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
	}

	// Vector store is authoritative: without it the service cannot run.
	vector, err := store.NewQdrant(store.QdrantConfig{
		Host:       cfg.Stores.Qdrant.Host,
		Port:       cfg.Stores.Qdrant.Port,
		Collection: cfg.Stores.Qdrant.Collection,
		Dimension:  uint64(cfg.Embedding.Dimension),
	}, logger)
	if err != nil {
		logger.Fatal("qdrant connection failed", zap.Error(err))
	}
	defer vector.Close()
	if err := vector.EnsureCollection(context.Background()); err != nil {
		logger.Fatal("qdrant collection setup failed", zap.Error(err))
	}

	// Graph and cache degrade to warnings when unavailable.
	var graph store.Adapter
	g, err := store.NewGraph(store.Neo4jConfig{
		URI:      cfg.Stores.Neo4j.URI,
		User:     cfg.Stores.Neo4j.User,
		Password: cfg.Stores.Neo4j.Password,
	}, logger)
	if err != nil {
		logger.Warn("Neo4j unavailable, running without graph store", zap.Error(err))
	} else if pingErr := g.Ping(context.Background()); pingErr != nil {
		logger.Warn("Neo4j unreachable, running without graph store", zap.Error(pingErr))
		g.Close(context.Background())
	} else {
		graph = g
		defer g.Close(context.Background())
	}

	var cache *store.Cache
	c, err := store.NewCache(cfg.Stores.Redis.URL, cfg.Memory.CacheTTL(), logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache", zap.Error(err))
	} else if !c.Health(context.Background()) {
		logger.Warn("Redis unreachable, running without cache")
		c.Close()
	} else {
		cache = c
		defer c.Close()
	}

	auditLog, err := audit.New(cfg.Data.Dir, logger)
	if err != nil {
		logger.Fatal("audit log setup failed", zap.Error(err))
	}

	mem := memory.New(embedder, vector, graph, cache, auditLog, memory.Config{
		ChunkSize:         cfg.Memory.ChunkSize,
		ChunkOverlap:      cfg.Memory.ChunkOverlap,
		DefaultGraphScore: cfg.Memory.DefaultGraphScore,
		CacheQueries:      cache != nil,
	}, logger)

	engine := consolidate.New(mem, auditLog, consolidate.Config{
		SampleLimit: cfg.Consolidate.SampleLimit,
		WriteReport: cfg.Consolidate.WriteReport,
	}, logger)

	agents := agent.NewRegistry()
	agent.RegisterBuiltins(agents, engine)

	tasks, err := schedule.NewStore(cfg.Data.Dir)
	if err != nil {
		logger.Fatal("task store setup failed", zap.Error(err))
	}
	history, err := schedule.NewHistory(cfg.Data.Dir)
	if err != nil {
		logger.Fatal("history setup failed", zap.Error(err))
	}
	runner, err := schedule.NewRunner(tasks, history, agents, cfg.Data.Dir, cfg.Schedule.RunTimeout(), logger)
	if err != nil {
		logger.Fatal("runner setup failed", zap.Error(err))
	}

	// Scheduler loop: evaluate tasks once per minute. External cron can
	// drive POST /api/schedule/tick instead; per-task lock files keep the
	// two triggers from running the same task twice.
	tickCtx, stopTicker := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case now := <-ticker.C:
				result, err := runner.Tick(tickCtx, now)
				if err != nil {
					logger.Error("scheduler tick failed", zap.Error(err))
					continue
				}
				if len(result.Due) > 0 {
					logger.Info("scheduler tick",
						zap.Ints("due", result.Due),
						zap.Int("ran", len(result.Ran)),
						zap.Ints("skipped", result.Skipped))
				}
			}
		}
	}()

	handler := api.NewHandler(mem, engine, tasks, runner, history, agents, cache, auditLog, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("recall listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down recall...")
	stopTicker()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
