/**
 * @description
 * Entry point for the catalog-service: course catalogue, enrollment
 * orchestration and payout administration.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mehedi-4/LMS/catalog-service/internal/api"
	"github.com/mehedi-4/LMS/catalog-service/internal/app"
	"github.com/mehedi-4/LMS/catalog-service/internal/config"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
	"github.com/mehedi-4/LMS/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 25
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; enroll rate limiting fails open until it recovers", "error", err)
		}
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	} else {
		logger.Warn("REDIS_URL not set; enroll rate limiting disabled")
	}

	publisher := rabbitmq.Connect(cfg.RabbitMQURL, logger)
	defer publisher.Close()

	repo := store.NewPostgresRepository(dbpool)
	bank := bankclient.NewClient(cfg.BankServiceURL, cfg.BankInternalAPIKey, cfg.BankTimeout())
	tokens := app.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL())

	reconciler := app.NewReconciler(repo, bank, publisher, logger, app.ReconcilerConfig{
		StaleAfter:  cfg.ReconcileStaleAfter(),
		MaxAttempts: cfg.ReconcileMaxAttempts,
		BatchSize:   cfg.ReconcileBatchSize,
	})
	scheduler := app.NewScheduler(reconciler, cfg.ReconcileSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start reconciliation scheduler", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Services{
		Auth:        app.NewAuthService(repo, tokens, cfg.BcryptCost),
		Profiles:    app.NewProfileService(repo, bank),
		Courses:     app.NewCourseService(repo, repo),
		Enrollments: app.NewEnrollmentService(repo, bank, publisher, limiter, cfg.EnrollRateLimit, logger),
		Payouts:     app.NewPayoutService(repo, bank, publisher, logger),
		Reconciler:  reconciler,
	}, logger)
	router := api.NewRouter(handler, tokens, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "bank_service_url", cfg.BankServiceURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
		logger.Warn("reconciliation job still running at shutdown")
	}

	logger.Info("server stopped")
}
