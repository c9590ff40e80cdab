package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"doubtdesk/internal/config"
	"doubtdesk/internal/database/milvus"
	"doubtdesk/internal/database/minio"
	"doubtdesk/internal/database/mongo"
	"doubtdesk/internal/database/neo4j"
	"doubtdesk/internal/database/redis"
	"doubtdesk/internal/doubt/api"
	"doubtdesk/internal/doubt/generator"
	"doubtdesk/internal/doubt/grounding"
	"doubtdesk/internal/doubt/memory"
	"doubtdesk/internal/doubt/service"
	"doubtdesk/internal/doubt/store"
	"doubtdesk/internal/doubt/writeback"
	"doubtdesk/internal/embedding"
	"doubtdesk/internal/llm"
	"doubtdesk/internal/notify"
	"doubtdesk/internal/videosearch"
	"doubtdesk/pkg/logger"
	"doubtdesk/pkg/ratelimiter"
)

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("doubt_service", "", "")
	appLogger.Info("Logger initialized")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Backing stores. Every client is constructed here and handed down
	// explicitly; nothing below this function reaches for a global.
	milvusClient, err := milvus.NewClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.Fatal("failed to connect to milvus: " + err.Error())
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal("failed to ensure memory collection: " + err.Error())
	}

	neo4jClient, err := neo4j.NewClient(ctx, &cfg.Databases.Neo4j)
	if err != nil {
		appLogger.Fatal("failed to connect to neo4j: " + err.Error())
	}
	defer neo4jClient.Close(context.Background())

	redisClient, err := redis.NewClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal("failed to connect to redis: " + err.Error())
	}
	defer redisClient.Close()

	mongoClient, err := mongo.NewClient(ctx, &cfg.Databases.MongoDB)
	if err != nil {
		appLogger.Fatal("failed to connect to mongodb: " + err.Error())
	}
	defer mongoClient.Disconnect(context.Background())

	minioClient, err := minio.NewClient(&cfg.Databases.MinIO)
	if err != nil {
		appLogger.Fatal("failed to connect to minio: " + err.Error())
	}
	appLogger.Info("Backing stores connected")

	// Model providers.
	embedder, err := embedding.NewEmbedding(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		appLogger.Fatal("failed to initialize embedding provider: " + err.Error())
	}

	model, err := llm.NewClient(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey)
	if err != nil {
		appLogger.Fatal("failed to initialize answer model: " + err.Error())
	}
	appLogger.Info("Model providers initialized")

	// Semantic memory.
	cache := memory.NewExactCache(redisClient)
	graph := memory.NewGraphStore(neo4jClient)
	lookup := memory.NewLookup(embedder, milvusClient, cache, &cfg.Doubt, logger.New("memory_lookup", "", ""))

	worker := writeback.NewWorker(embedder, milvusClient, graph, cache, &cfg.Doubt, logger.New("writeback", "", ""))
	worker.Start()
	defer worker.Stop()

	// Pipeline.
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.Databases.MongoDB.Database))
	notifier := notify.NewKafkaNotifier(&cfg.Databases.Kafka)
	defer notifier.Close()

	svc := service.NewService(
		grounding.NewBuilder(graph, &cfg.Doubt, logger.New("grounding", "", "")),
		lookup,
		generator.NewGenerator(model, generator.NewHeuristicClassifier(), minioClient, logger.New("generator", "", "")),
		worker,
		mongoStore,
		mongoStore,
		mongoStore,
		videosearch.NewClient(&cfg.VideoSearch),
		notifier,
		ratelimiter.NewSlidingWindowQuota(cfg.Doubt.GuestDailyQuota, 24*time.Hour, 24),
		&cfg.Doubt,
		&cfg.LLM,
		logger.New("doubt_service", "", ""),
	)
	appLogger.Info("Dependencies injected")

	health := map[string]api.HealthChecker{
		"milvus": func() error {
			hctx, hcancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer hcancel()
			return milvusClient.HealthCheck(hctx)
		},
		"neo4j": func() error {
			hctx, hcancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer hcancel()
			return neo4jClient.HealthCheck(hctx)
		},
		"mongodb": func() error {
			hctx, hcancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer hcancel()
			return mongo.HealthCheck(hctx, mongoClient)
		},
		"redis": func() error {
			hctx, hcancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer hcancel()
			return redisClient.Ping(hctx).Err()
		},
	}

	handler := api.NewHandler(svc, health, logger.New("api", "", ""))
	router := api.SetupRouter(handler, cfg.Auth.JwtSecret)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		appLogger.Info("Starting server on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("forced shutdown: " + err.Error())
	}
}
