package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/config"
	"github.com/noah-isme/skilltest-api/internal/database"
	"github.com/noah-isme/skilltest-api/internal/handler"
	"github.com/noah-isme/skilltest-api/internal/middleware"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/queue"
	"github.com/noah-isme/skilltest-api/internal/repository"
	"github.com/noah-isme/skilltest-api/internal/router"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/pkg/ai"
	cloud "github.com/noah-isme/skilltest-api/pkg/cloudinary"
	"github.com/noah-isme/skilltest-api/pkg/storage"
	"github.com/noah-isme/skilltest-api/pkg/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("service stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.AppEnv == "development" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&models.Test{}, &models.Attempt{}, &models.AnswerLog{}, &models.OutboxEntry{}, &models.AIJob{}); err != nil {
		return err
	}

	// Redis and NATS are optional: without them the sweeper runs on every
	// replica and workers fall back to in-process wake-ups and polling.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, sweeper lock disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, using in-process signals")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	var signals queue.Waker = queue.NewLocalSignal()
	if natsConn != nil {
		signals = queue.NewNATSSignal(natsConn, cfg.QueueSignalPrefix, logger)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	fileStorage, err := newFileStorage(cfg, logger)
	if err != nil {
		return err
	}

	generator, closeGenerator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGenerator()

	attemptRepo := repository.NewAttemptRepository(db)
	testRepo := repository.NewTestRepository(db)
	outboxStore := queue.NewStore[models.OutboxEntry](db, service.NotificationQueueName, queue.Options{Signal: signals})
	jobStore := queue.NewStore[models.AIJob](db, service.AIJobQueueName, queue.Options{Signal: signals})

	webhookClient := webhook.NewClient(webhook.Config{
		Secret:  cfg.Webhook.Secret,
		Timeout: cfg.Webhook.Timeout,
		Logger:  logger,
	})
	outbox := service.NewNotificationOutbox(outboxStore, webhookClient, service.NotificationOutboxConfig{
		TargetURL:   cfg.Webhook.URL,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		StaleAfter:  cfg.Workers.NotificationStaleAfter,
	}, validate, logger)

	feed := service.NewAttemptFeed(natsConn, cfg.RealtimeSubject, logger)
	uploads := service.NewUploadService(fileStorage, cfg.UploadMaxSizeMB, logger)
	testService := service.NewTestService(testRepo, validate, logger)
	attemptService := service.NewAttemptService(attemptRepo, testRepo, outbox, feed, uploads, service.AttemptServiceConfig{
		ViolationLimit:     cfg.Attempts.ViolationLimit,
		DefaultExpiryHours: cfg.Attempts.DefaultExpiryHours,
	}, validate, logger)
	aiJobService := service.NewAIJobService(jobStore, generator, testService, service.AIJobConfig{
		Timeout:      cfg.AI.Timeout,
		MaxQuestions: cfg.AI.MaxQuestions,
		StaleAfter:   cfg.Workers.AIStaleAfter,
	}, validate, logger)
	sweeper := service.NewDeadlineSweeper(attemptRepo, outbox, feed, redisClient, service.SweeperConfig{
		Interval:      cfg.Sweeper.Interval,
		IdleThreshold: cfg.Sweeper.IdleThreshold,
		WarningWindow: cfg.Sweeper.WarningWindow,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: splitOrigins(cfg.CORSAllowOrigins),
	})
	router.Register(app, cfg, router.Dependencies{
		PublicTestHandler:    handler.NewPublicTestHandler(attemptService, logger),
		AttemptHandler:       handler.NewAttemptHandler(attemptService, logger),
		AttemptStreamHandler: handler.NewAttemptStreamHandler(feed, logger),
		TestHandler:          handler.NewTestHandler(testService, logger),
		AIJobHandler:         handler.NewAIJobHandler(aiJobService, logger),
		NotificationHandler:  handler.NewNotificationHandler(outbox, logger),
		HealthProbes:         healthProbes(db, redisClient),
	})

	notificationWake, cancelNotificationWake, err := signals.Subscribe(service.NotificationQueueName)
	if err != nil {
		return err
	}
	defer cancelNotificationWake()
	aiWake, cancelAIWake, err := signals.Subscribe(service.AIJobQueueName)
	if err != nil {
		return err
	}
	defer cancelAIWake()

	notificationWorker := queue.NewWorker(queue.WorkerConfig{
		Name:         service.NotificationQueueName,
		Idle:         cfg.Workers.NotificationIdle,
		ErrorBackoff: cfg.Workers.NotificationErrorBackoff,
		Wake:         notificationWake,
		Reclaim:      outbox.ReclaimStale,
	}, outbox.DeliverOnce, logger)
	aiWorker := queue.NewWorker(queue.WorkerConfig{
		Name:         service.AIJobQueueName,
		Idle:         cfg.Workers.AIIdle,
		ErrorBackoff: cfg.Workers.AIErrorBackoff,
		Wake:         aiWake,
		Reclaim:      aiJobService.ReclaimStale,
	}, aiJobService.RunOnce, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("http server listening")
		return app.Listen(cfg.HTTPAddress())
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		return nil
	})
	group.Go(func() error { return notificationWorker.Run(groupCtx) })
	group.Go(func() error { return aiWorker.Run(groupCtx) })
	group.Go(func() error { return sweeper.Run(groupCtx) })
	group.Go(func() error { return feed.Start(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newFileStorage(cfg config.Config, logger zerolog.Logger) (service.FileStorage, error) {
	if cfg.Cloudinary.Enabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		}, logger)
		if err != nil {
			return nil, err
		}
		return uploader, nil
	}

	local, err := storage.NewLocal(cfg.UploadDir, "/uploads", logger)
	if err != nil {
		return nil, err
	}
	return local, nil
}

// newGenerator picks the configured provider. Without an API key the AI
// worker still runs and fails jobs with a clear error.
func newGenerator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Generator, func(), error) {
	noop := func() {}

	switch strings.ToLower(cfg.AI.Provider) {
	case "gemini":
		if cfg.AI.GeminiAPIKey == "" {
			logger.Warn().Msg("gemini api key missing, ai generation disabled")
			return nil, noop, nil
		}
		generator, err := ai.NewGeminiGenerator(ctx, ai.GeminiConfig{
			APIKey: cfg.AI.GeminiAPIKey,
			Model:  cfg.AI.Model,
			Logger: logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return generator, func() { _ = generator.Close() }, nil
	default:
		if cfg.AI.OpenAIAPIKey == "" {
			logger.Warn().Msg("openai api key missing, ai generation disabled")
			return nil, noop, nil
		}
		generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.AI.OpenAIAPIKey,
			Model:  cfg.AI.Model,
			Logger: logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return generator, noop, nil
	}
}

func healthProbes(db *gorm.DB, redisClient *redis.Client) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return probes
}

func splitOrigins(value string) []string {
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
