package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/archive"
	"github.com/Harsh-BH/alsit/internal/config"
	amqpdelivery "github.com/Harsh-BH/alsit/internal/delivery/amqp"
	handler "github.com/Harsh-BH/alsit/internal/delivery/http"
	"github.com/Harsh-BH/alsit/internal/judge"
	"github.com/Harsh-BH/alsit/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/alsit/internal/repository/redis"
	"github.com/Harsh-BH/alsit/internal/retry"
	"github.com/Harsh-BH/alsit/internal/sandbox"
	"github.com/Harsh-BH/alsit/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting alsit judge")

	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	// Connect to the container runtime
	dockerClient, err := sandbox.NewDockerClient(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to Docker", zap.Error(err))
	}
	defer dockerClient.Close()
	logger.Info("Connected to Docker", zap.String("api_version", dockerClient.ClientVersion()))

	tests, err := newTestStore(cfg.Tests)
	if err != nil {
		logger.Fatal("Failed to initialize test store", zap.Error(err))
	}

	// Initialize repositories
	ticketRepo := postgres.NewPostgresTicketRepository(dbPool)
	claims := redisrepo.NewRedisClaimStore(redisClient, cfg.Judge.ClaimTTL)

	dispatcher, err := judge.NewDispatcher(cfg.Judge.Workers, judge.Deps{
		Tickets: ticketRepo,
		Tests:   tests,
		Sandbox: sandbox.NewDockerManager(dockerClient, logger),
		Claims:  claims,
		Config: judge.Config{
			Image: cfg.Judge.Image,
			Retry: retry.Policy{
				MaxAttempts:     cfg.Judge.RetryMaxAttempts,
				InitialInterval: cfg.Judge.RetryInitial,
				MaxInterval:     cfg.Judge.RetryMax,
			},
			RunTimeout:       cfg.Judge.RunTimeout,
			RemoveContainers: cfg.Judge.RemoveContainers,
			OutputLimit:      cfg.Judge.OutputLimit,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Failed to initialize judges", zap.Error(err))
	}
	for lang, n := range dispatcher.Capacity() {
		logger.Info("Judges ready", zap.String("language", lang.String()), zap.Int("count", n))
	}

	// Initialize use cases
	submitUC := usecase.NewSubmitTicketUsecase(ticketRepo, dispatcher, logger)
	getTicketUC := usecase.NewGetTicketUsecase(ticketRepo, logger)

	router := handler.NewRouter(&handler.RouterDeps{
		SubmitUC:    submitUC,
		GetTicketUC: getTicketUC,
		Judges:      dispatcher,
		Checks: map[string]handler.CheckFunc{
			"postgres": dbPool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
			"docker": func(ctx context.Context) error {
				_, err := dockerClient.Ping(ctx)
				return err
			},
		},
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		BodyLimit:       cfg.Server.BodyLimit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	var consumer *amqpdelivery.Consumer
	if cfg.RabbitMQ.Enabled {
		consumer, err = amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, dispatcher, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
		}
		logger.Info("Connected to RabbitMQ")

		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("AMQP consumer error", zap.Error(err))
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down judge...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close AMQP consumer", zap.Error(err))
		}
	}

	// Let in-flight tickets finish
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Judges did not drain in time, in-flight runs cancelled",
			zap.Int64("in_flight", dispatcher.InFlight()),
			zap.Error(err),
		)
	}

	logger.Info("Judge stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func newTestStore(cfg config.TestsConfig) (archive.TestStore, error) {
	if cfg.Backend == config.BackendMinIO {
		return archive.NewMinIOTestStore(archive.MinIOConfig{
			Endpoint:   cfg.MinIOEndpoint,
			AccessKey:  cfg.MinIOAccessKey,
			SecretKey:  cfg.MinIOSecretKey,
			UseSSL:     cfg.MinIOUseSSL,
			Bucket:     cfg.MinIOBucket,
			Prefix:     cfg.MinIOPrefix,
			Region:     cfg.MinIORegion,
			MaxRetries: cfg.MinIORetries,
		})
	}
	return archive.NewFileTestStore(cfg.Path), nil
}
