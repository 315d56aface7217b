package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/messaging"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	probes := []handler.HealthProbe{{
		Name:  "database",
		Check: func(ctx context.Context) error { return database.PingDatabase(ctx, db) },
	}}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		logger.Warn().Msg("redis not configured, using in-process locks and no test case cache")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
		probes = append(probes, handler.HealthProbe{
			Name:  "nats",
			Check: func(context.Context) error { return database.NATSHealthy(natsConn) },
		})
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	locker := service.NewMemoryLocker()
	if redisClient != nil {
		locker = service.NewRedisLocker(redisClient, cfg.ChannelBase, cfg.LockTTL)
	}

	exerciseRepo := repository.NewExerciseRepository(db)
	participationRepo := repository.NewParticipationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewResultRepository(db)
	testCaseRepo := repository.NewTestCaseRepository(db)
	categoryRepo := repository.NewStaticCodeAnalysisCategoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	testCaseEvents := service.NewTestCaseEventBroker(natsConn, cfg.ChannelBase, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	testCaseService := service.NewTestCaseService(testCaseRepo, exerciseRepo, locker, redisClient, cfg.TestCaseCacheTTL, testCaseEvents, validate, logger)
	policyService := service.NewSubmissionPolicyService(submissionRepo, service.NewParticipationRepositoryLocker(participationRepo), logger)
	calculator := grading.NewCalculator(categoryRepo, policyService, notificationService, logger)
	resultService := service.NewResultService(resultRepo, policyService, logger)
	buildResultService := service.NewBuildResultService(participationRepo, exerciseRepo, submissionRepo, testCaseService, calculator, resultService, locker, validate, logger)
	reEvaluationService := service.NewReEvaluationService(exerciseRepo, participationRepo, resultRepo, testCaseService, calculator, locker, cfg.ReEvaluationConcurrency, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	testCaseEvents.Start(ctx)
	notificationService.Start(ctx)

	if natsConn != nil {
		consumer := messaging.NewNATSConsumer(natsConn, cfg.BuildResultSubject, cfg.BuildResultQueue, cfg.ConsumerWorkers, buildResultService, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start nats build result consumer")
		}
		defer consumer.Wait()
	}

	if cfg.RabbitMQURL != "" {
		consumer := messaging.NewAMQPConsumer(messaging.AMQPConfig{
			URL:            cfg.RabbitMQURL,
			Queue:          cfg.RabbitMQQueue,
			WorkersCount:   cfg.ConsumerWorkers,
			ReconnectDelay: cfg.RabbitMQReconnectDelay,
		}, buildResultService, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start rabbitmq build result consumer")
		}
		defer consumer.Close()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		BuildResultHandler:  handler.NewBuildResultHandler(buildResultService, logger),
		ResultHandler:       handler.NewResultHandler(resultService, logger),
		TestCaseHandler:     handler.NewTestCaseHandler(testCaseService, reEvaluationService, testCaseEvents, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, 30*time.Second),
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
