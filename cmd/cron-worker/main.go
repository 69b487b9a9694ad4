package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meadowlane/pickups-backend/internal/cron"
	"github.com/meadowlane/pickups-backend/internal/pickups"
	"github.com/meadowlane/pickups-backend/internal/rollover"
	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/config"
	"github.com/meadowlane/pickups-backend/pkg/db"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/metrics"
	"github.com/meadowlane/pickups-backend/pkg/migrate"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
	"github.com/meadowlane/pickups-backend/pkg/redis"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

const lockKeyFormat = "pickups:cron-worker:lock:%s"

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

	engine := schedule.NewEngine(timeutil.LoadLocation(cfg.Scheduling.Timezone))
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:               subscriptionRepo,
		TxRunner:           dbClient,
		Outbox:             outboxService,
		Engine:             engine,
		Logger:             logg,
		MaxBillingFailures: cfg.Scheduling.MaxBillingRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	rolloverService, err := rollover.NewService(rollover.ServiceParams{
		Subscriptions:      subscriptionRepo,
		Pickups:            pickups.NewRepository(dbClient.DB()),
		Lifecycle:          subscriptionService,
		TxRunner:           dbClient,
		Outbox:             outboxService,
		Engine:             engine,
		Logger:             logg,
		MaxBillingFailures: cfg.Scheduling.MaxBillingRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rollover service", err)
		os.Exit(1)
	}

	autoResumeJob, err := cron.NewAutoResumeJob(subscriptionRepo, rolloverService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auto-resume job", err)
		os.Exit(1)
	}
	rolloverJob, err := cron.NewDailyRolloverJob(subscriptionRepo, rolloverService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rollover job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	// Expired pauses are lifted before the rollover so freshly resumed
	// subscriptions schedule on the same cycle.
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(autoResumeJob, rolloverJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
