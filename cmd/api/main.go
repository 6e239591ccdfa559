package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	blobAdapter "chatgate/internal/infrastructure/blob/adapter"
	cacheAdapter "chatgate/internal/infrastructure/cache/adapter"
	cachePort "chatgate/internal/infrastructure/cache/port"
	"chatgate/internal/infrastructure/database"
	identityAdapter "chatgate/internal/infrastructure/identity/adapter"
	queueAdapter "chatgate/internal/infrastructure/queue/adapter"
	qport "chatgate/internal/infrastructure/queue/port"
	"chatgate/internal/infrastructure/realtime"
	"chatgate/internal/pkg/chat/application/assign"
	"chatgate/internal/pkg/chat/application/task"
	"chatgate/internal/pkg/chat/application/throttle"
	httpHandler "chatgate/internal/pkg/chat/presentation/http"
	chatAdapter "chatgate/internal/pkg/chat/persistence/repository/adapter"
	userAdapter "chatgate/internal/repository/adapter"

	v1 "chatgate/cmd/api/router/v1"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := database.NewPoolFromEnv(ctx)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Throttling degrades to fail-open without redis, so a missing cache is
	// a warning rather than a startup failure.
	var cache cachePort.Cache
	if rc, err := cacheAdapter.NewRedisAdapter(); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
	} else {
		cache = rc
		defer rc.Close()
	}

	verifier, err := identityAdapter.NewJWTVerifierFromEnv()
	if err != nil {
		logger.Fatal("failed to configure token verification", zap.Error(err))
	}

	store, err := blobAdapter.NewLocalStoreFromEnv()
	if err != nil {
		logger.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	queueClient, err := queueAdapter.NewAsynqClientFromEnv()
	if err != nil {
		logger.Fatal("failed to connect queue client", zap.Error(err))
	}
	defer func() { _ = queueClient.Close() }()

	chatRepo := chatAdapter.NewPgChatRepository(pool)
	userRepo := userAdapter.NewPgUserRepository(pool)
	coordinator := assign.NewCoordinator(userRepo, chatRepo)

	// Background workers share the API process.
	worker, err := queueAdapter.NewAsynqServer()
	if err != nil {
		logger.Fatal("failed to build queue server", zap.Error(err))
	}
	task.RegisterAutoAssignTask(worker, chatRepo, coordinator, logger)
	task.RegisterThumbnailTask(worker, chatRepo, store, logger)
	go func() {
		if err := worker.Run(context.Background()); err != nil {
			logger.Error("queue server stopped", zap.Error(err))
		}
	}()
	defer func() { _ = worker.Stop(context.Background()) }()

	go runAutoAssignTicker(queueClient, logger)

	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.Static("/media", store.Dir())

	v1.RegisterRoutes(r, httpHandler.Deps{
		Repo:        chatRepo,
		Users:       userRepo,
		Coordinator: coordinator,
		Bus:         realtime.NewBus(),
		Gate:        throttle.NewGate(cache, logger),
		Store:       store,
		Queue:       queueClient,
		Verifier:    verifier,
		Log:         logger,
	})

	// Start HTTP server (blocks until shutdown)
	if err := r.Run(); err != nil {
		logger.Fatal("http server exited", zap.Error(err))
	}
}

// runAutoAssignTicker periodically enqueues the support auto-assign sweep.
// AUTO_ASSIGN_INTERVAL accepts a Go duration; empty disables the ticker and
// leaves the sweep to the HTTP endpoint.
func runAutoAssignTicker(client qport.Client, logger *zap.Logger) {
	raw := os.Getenv("AUTO_ASSIGN_INTERVAL")
	if raw == "" {
		return
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		logger.Warn("invalid AUTO_ASSIGN_INTERVAL, ticker disabled", zap.String("value", raw))
		return
	}

	payload, _ := json.Marshal(task.AutoAssignPayload{})
	for range time.Tick(interval) {
		_, err := client.Enqueue(context.Background(),
			qport.Task{Type: task.TypeAutoAssign, Payload: payload},
			qport.EnqueueOption{Queue: "support", UniqueTTL: interval})
		if err != nil {
			logger.Warn("auto-assign enqueue failed", zap.Error(err))
		}
	}
}
