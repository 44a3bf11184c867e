package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prepmood/prepmood-backend/internal/cron"
	"github.com/prepmood/prepmood-backend/internal/wiring"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db"
	"github.com/prepmood/prepmood-backend/pkg/instance"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/metrics"
	"github.com/prepmood/prepmood-backend/pkg/migrate"
	"github.com/prepmood/prepmood-backend/pkg/redis"
)

const (
	recoveryBatch = 50
	orphanBatch   = 100
	recoveryStale = 5 * time.Minute
	hoursPerDay   = 24
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := wiring.Build(cfg, logg, dbClient, redisClient, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker", env)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *wiring.Services) (*cron.Registry, error) {
	transferExpiry, err := cron.NewTransferExpiryJob(cron.TransferExpiryJobParams{
		Logger:    logg,
		Transfers: services.Transfers,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer expiry job: %w", err)
	}

	recovery, err := cron.NewPaidEventRecoveryJob(cron.PaidEventRecoveryJobParams{
		Logger:      logg,
		Fulfillment: services.Fulfillment,
		StaleAfter:  recoveryStale,
		BatchSize:   recoveryBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("paid event recovery job: %w", err)
	}

	orphans, err := cron.NewOrphanReleaseJob(cron.OrphanReleaseJobParams{
		Logger:    logg,
		Stock:     services.Stock,
		Grace:     cfg.Fulfillment.OrphanReleaseGrace,
		BatchSize: orphanBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("orphan release job: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: services.OutboxRepo,
		Retention:  int(cfg.Outbox.Retention.Hours() / hoursPerDay),
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewRegistry(transferExpiry, recovery, orphans, retention), nil
}
