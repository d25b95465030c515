package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
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

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/config"
	"github.com/clipforge/api/internal/handler"
	"github.com/clipforge/api/internal/media"
	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/orchestrator"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/internal/store"
	ws "github.com/clipforge/api/internal/websocket"
	"github.com/clipforge/api/internal/worker"
	"github.com/clipforge/api/pkg/response"
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

	// Initialize external clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	videoClient := client.NewVideoClient(&cfg.Video)

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize Airtable client (optional)
	var records client.RecordStore
	airtableClient := client.NewAirtableClient(&cfg.Airtable)
	if airtableClient.IsConfigured() {
		records = airtableClient
	} else {
		airtableClient = nil
		log.Println("Info: Airtable not configured, record propagation disabled")
	}

	// Initialize job store
	jobStore := store.NewRedisStore(redisClient, cfg.Pipeline.JobTTL)

	// Initialize the pipeline
	failer := orchestrator.NewFailer(jobStore, records, hub)
	publisher := orchestrator.NewPublisher(jobStore, storage, records, failer, hub, cfg.Pipeline.PublishTimeout)
	scheduler := orchestrator.NewMergeScheduler(
		jobStore,
		media.NewHTTPFetcher(cfg.Pipeline.FetchTimeout),
		media.NewFFmpegMerger(cfg.Pipeline.FFmpegPath),
		publisher,
		failer,
		hub,
		cfg.Pipeline.MergeWorkers,
		cfg.Pipeline.TempDir,
		cfg.Pipeline.FetchTimeout,
	)
	scheduler.Start()
	defer scheduler.Stop()

	correlator := orchestrator.NewCorrelator(jobStore, scheduler, failer, hub)
	callbackURL := strings.TrimRight(cfg.Pipeline.CallbackBaseURL, "/") + "/callbacks/video"
	dispatcher := orchestrator.NewDispatcher(jobStore, videoClient, failer, hub, callbackURL, cfg.Pipeline.AwaitTimeout)

	// Initialize services
	promptService := service.NewPromptService(groqClient)
	videoService := service.NewVideoService(jobStore, asynqClient)

	// Initialize handlers
	videoHandler := handler.NewVideoHandler(videoService, airtableClient, validate)
	callbackHandler := handler.NewCallbackHandler(correlator, validate, cfg.Video.CallbackToken)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store":    jobStore.Available(),
				"groq":     groqClient.IsConfigured(),
				"video":    videoClient.IsConfigured(),
				"r2":       r2Client != nil,
				"airtable": records != nil,
			},
		})
	})

	// Render provider callbacks (authenticated by shared token, not JWT)
	app.Post("/callbacks/video", rateLimiter.CallbackLimit(cfg.RateLimit.CallbackPerMin), callbackHandler.Render)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Video routes
	video := api.Group("/video")
	video.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), videoHandler.Generate)
	video.Post("/from-record/:recordId", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), videoHandler.FromRecord)
	video.Get("/status/:jobId", videoHandler.Status)
	video.Get("/result/:jobId", videoHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, promptService, dispatcher, failer)

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
	promptService *service.PromptService,
	dispatcher *orchestrator.Dispatcher,
	failer *orchestrator.Failer,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"dispatch": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	dispatchWorker := worker.NewDispatchWorker(promptService, dispatcher, failer)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDispatch, dispatchWorker.ProcessTask)

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
			"code":    response.CodeServiceError,
			"message": message,
		},
	})
}
