package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/config"
	"github.com/tunegift/api/internal/handler"
	"github.com/tunegift/api/internal/middleware"
	"github.com/tunegift/api/internal/service"
	"github.com/tunegift/api/internal/store"
	"github.com/tunegift/api/internal/worker"
	ws "github.com/tunegift/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// External clients
	sunoClient := client.NewSunoClient(&cfg.Suno)
	openAIClient := client.NewOpenAIClient(&cfg.OpenAI)

	var storageClient client.StorageClient
	if r2Client, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("Warning: clip archival disabled: %v", err)
	} else {
		storageClient = r2Client
	}

	// Stores
	taskStore := store.NewRedisTaskStore(redisClient)
	songStore := store.NewRedisSongStore(redisClient)

	// Services
	lyricsService := service.NewLyricsService(openAIClient)
	enqueuer := worker.NewEnqueuer(asynqClient)
	generationService := service.NewGenerationService(sunoClient, taskStore, songStore, enqueuer, lyricsService, cfg)

	// Handlers
	generateHandler := handler.NewGenerateHandler(generationService, lyricsService, validate)
	statusHandler := handler.NewStatusHandler(generationService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Guest-Id",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Generation routes
	app.Post("/generate",
		authMiddleware.Identify(),
		rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour),
		generateHandler.Generate,
	)
	app.Get("/check-music-status/:taskId", statusHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tasks/:taskId", websocket.New(func(c *websocket.Conn) {
		taskID := c.Params("taskId")
		hub.HandleConnection(c, taskID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, sunoClient, taskStore, songStore, storageClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	sunoClient *client.SunoClient,
	taskStore store.TaskStore,
	songStore store.SongStore,
	storageClient client.StorageClient,
	hub *ws.Hub,
) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				worker.QueueGeneration: 10,
			},
		},
	)

	pollWorker := worker.NewPollWorker(sunoClient, taskStore, songStore, storageClient, hub, cfg)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypePoll, pollWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
