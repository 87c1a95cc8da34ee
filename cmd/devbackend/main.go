package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/medcast/podcast-tracker/internal/config"
	"github.com/medcast/podcast-tracker/internal/devbackend"
	"github.com/medcast/podcast-tracker/pkg/logging"
)

// sweepSpec re-runs the queue processor in case a nudge was lost
const sweepSpec = "@every 30s"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat).WithField("service", "devbackend")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Fatal("redis is required by the dev backend")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	service := devbackend.NewService(devbackend.NewRedisStore(redisClient), asynqClient, cfg.Tracker.DefaultWaitPerJob, log)

	// Without storage the job reports a direct URL, otherwise only the
	// object path and the tracker presigns it.
	workerCfg := devbackend.WorkerConfig{
		StepDuration: cfg.DevBackend.StepDuration,
		FailureRate:  cfg.DevBackend.FailureRate,
	}
	if cfg.Storage.BucketName == "" {
		workerCfg.AudioBaseURL = "http://localhost:" + cfg.DevBackend.Port + "/audio"
	}
	worker := devbackend.NewWorker(service, workerCfg, log)

	// Queue processor
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			devbackend.QueueName: 1,
		},
		LogLevel: logging.AsynqLevel(cfg.Server.LogLevel),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(devbackend.TaskTypeProcessQueue, worker.ProcessTask)
	if err := srv.Start(mux); err != nil {
		log.WithError(err).Fatal("asynq server error")
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		LogLevel: logging.AsynqLevel(cfg.Server.LogLevel),
	})
	if _, err := scheduler.Register(sweepSpec, asynq.NewTask(devbackend.TaskTypeProcessQueue, nil), asynq.Queue(devbackend.QueueName)); err != nil {
		log.WithError(err).Fatal("failed to register queue sweep")
	}
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("asynq scheduler error")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Use("/functions", devbackend.ServiceAuth(cfg.Backend.APIKey, cfg.Backend.JWTSecret))
	devbackend.NewHandler(service).Register(app)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down dev backend")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
		scheduler.Shutdown()
		srv.Shutdown()
	}()

	addr := ":" + cfg.DevBackend.Port
	log.WithField("addr", addr).Info("dev backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
