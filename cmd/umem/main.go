package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/enfinyte/umem/internal/annotation"
	"github.com/enfinyte/umem/internal/api"
	"github.com/enfinyte/umem/internal/config"
	"github.com/enfinyte/umem/internal/controller"
	milvusdb "github.com/enfinyte/umem/internal/database/milvus"
	mysqldb "github.com/enfinyte/umem/internal/database/mysql"
	redisdb "github.com/enfinyte/umem/internal/database/redis"
	"github.com/enfinyte/umem/internal/embedding"
	"github.com/enfinyte/umem/internal/ingest"
	"github.com/enfinyte/umem/internal/ingest/consumer"
	"github.com/enfinyte/umem/internal/llm"
	"github.com/enfinyte/umem/internal/mcpserver"
	"github.com/enfinyte/umem/internal/store"
	"github.com/enfinyte/umem/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("umem")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vector store backend.
	memStore, err := buildStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize vector store")
	}
	defer memStore.Close()

	// Embedding client, optionally fronted by a redis cache, always wrapped
	// with the retry policy.
	policy, err := cfg.RetryPolicy()
	if err != nil {
		appLogger.WithError(err).Fatal("invalid retry configuration")
	}
	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize embedder")
	}
	if cfg.Embedding.Cache.Enabled {
		rdb, err := redisdb.NewClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		ttl, err := cfg.EmbeddingCacheTTL()
		if err != nil {
			appLogger.WithError(err).Fatal("invalid embedding cache configuration")
		}
		embedder = embedding.WithCache(embedder, rdb, embeddingCachePrefix(cfg.Embedding), ttl, appLogger)
	}
	embedder = embedding.WithRetry(embedder, policy, cfg.Embedding.Dimensions)

	// Annotation pipeline.
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize llm client")
	}
	annotator := annotation.NewPipeline(llmClient, policy, appLogger)

	ctrl := controller.New(memStore, embedder, annotator, appLogger)

	// HTTP front end.
	handler := api.NewHandler(ctrl, ingest.NewService(), appLogger)
	router := api.SetupRouter(handler)
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTP.Address,
		Handler: router,
	}
	go func() {
		appLogger.WithField("address", cfg.Server.HTTP.Address).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("http server error")
		}
	}()

	// MCP front end.
	mcpServer := mcpserver.NewServer(ctrl, appLogger)
	go func() {
		appLogger.WithField("address", cfg.Server.MCP.Address).Info("mcp server listening")
		if err := mcpserver.Serve(mcpServer, cfg.Server.MCP); err != nil {
			appLogger.WithError(err).Error("mcp server stopped")
		}
	}()

	// Optional Kafka ingestion.
	if cfg.Kafka.Enabled {
		kafkaConsumer := consumer.NewKafkaConsumer(cfg.Kafka, ctrl, appLogger)
		defer kafkaConsumer.Close()
		kafkaConsumer.Start(ctx)
		appLogger.WithField("topic", cfg.Kafka.Topic).Info("kafka consumer started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("http server shutdown failed")
	}
}

// buildStore constructs the configured vector store backend.
func buildStore(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) (store.VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case config.BackendMilvus:
		client, err := milvusdb.NewClient(ctx, cfg.VectorStore.Milvus)
		if err != nil {
			return nil, err
		}
		if err := milvusdb.EnsureCollection(ctx, client, cfg.VectorStore.Milvus.Collection, cfg.Embedding.Dimensions); err != nil {
			client.Close()
			return nil, err
		}
		return store.NewMilvusStore(client, cfg.VectorStore.Milvus.Collection, cfg.Embedding.Dimensions, appLogger), nil
	case config.BackendMySQL:
		db, err := mysqldb.Open(cfg.VectorStore.MySQL)
		if err != nil {
			return nil, err
		}
		s := store.NewMySQLStore(db, cfg.Embedding.Dimensions, appLogger)
		if err := s.AutoMigrate(); err != nil {
			mysqldb.Close(db)
			return nil, err
		}
		return s, nil
	default:
		// Unreachable after config validation.
		return nil, fmt.Errorf("unsupported vector store backend: %q", cfg.VectorStore.Backend)
	}
}

func embeddingCachePrefix(cfg config.EmbeddingConfig) string {
	switch cfg.Provider {
	case "openai":
		return "openai:" + cfg.OpenAI.Model
	case "gemini":
		return "gemini:" + cfg.Gemini.Model
	case "ollama":
		return "ollama:" + cfg.Ollama.Model
	default:
		return cfg.Provider
	}
}
