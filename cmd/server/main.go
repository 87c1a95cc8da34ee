package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/medcast/podcast-tracker/internal/client"
	"github.com/medcast/podcast-tracker/internal/config"
	"github.com/medcast/podcast-tracker/internal/handler"
	"github.com/medcast/podcast-tracker/internal/middleware"
	"github.com/medcast/podcast-tracker/internal/model"
	"github.com/medcast/podcast-tracker/internal/tracker"
	ws "github.com/medcast/podcast-tracker/internal/websocket"
	"github.com/medcast/podcast-tracker/pkg/logging"
	"github.com/medcast/podcast-tracker/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	// Initialize Redis client (rate limiting only)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis not available, rate limiting disabled until it recovers")
	}

	// External clients
	backendClient := client.NewBackendClient(&cfg.Backend, log)
	if !backendClient.IsConfigured() {
		log.Warn("backend credentials not configured, requests are sent unauthenticated")
	}

	opts := tracker.OptionsFromConfig(cfg)
	opts.Logger = log
	opts.Validator = tracker.NewValidator()

	storageClient, err := client.NewStorageClient(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Info("audio storage not configured, audio paths are passed through")
	} else {
		opts.Resolver = storageClient
	}

	// Tracker and its viewers
	ctrl := tracker.NewController(backendClient, opts)
	defer ctrl.Close()

	hub := ws.NewHub(log)
	go hub.Run(ctx)
	ctrl.AddListener(hub)

	podcastHandler := handler.NewPodcastHandler(ctrl, opts.Validator)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: !strings.EqualFold(cfg.Server.Env, "development"),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"backend": backendClient.IsConfigured(),
				"storage": storageClient != nil,
				"viewers": hub.ClientCount(),
			},
		})
	})

	// Podcast routes
	podcasts := app.Group("/api/podcasts")
	podcasts.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), podcastHandler.Generate)
	podcasts.Get("/current", podcastHandler.Current)
	podcasts.Get("/current/logs", podcastHandler.Logs)
	podcasts.Get("/current/diagnostics", podcastHandler.Diagnostics)
	podcasts.Post("/current/cancel", podcastHandler.Cancel)
	podcasts.Post("/current/restart", podcastHandler.Restart)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/podcasts", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, fiber.Map{
			"type":     model.WSMessageTypeSnapshot,
			"snapshot": ctrl.Snapshot(),
		})
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		ctrl.Close()
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.WithField("addr", addr).Info("tracker starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
