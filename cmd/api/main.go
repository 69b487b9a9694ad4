package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/meadowlane/pickups-backend/api/controllers"
	"github.com/meadowlane/pickups-backend/api/routes"
	"github.com/meadowlane/pickups-backend/internal/ingestion"
	"github.com/meadowlane/pickups-backend/internal/pickups"
	"github.com/meadowlane/pickups-backend/internal/plans"
	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/config"
	"github.com/meadowlane/pickups-backend/pkg/db"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/migrate"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
	"github.com/meadowlane/pickups-backend/pkg/redis"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	loc := timeutil.LoadLocation(cfg.Scheduling.Timezone)
	engine := schedule.NewEngine(loc)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:   plans.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

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

	ingestionService, err := ingestion.NewService(ingestion.ServiceParams{
		Events:        ingestion.NewEventRepository(dbClient.DB()),
		Subscriptions: subscriptionRepo,
		Plans:         planService,
		Lifecycle:     subscriptionService,
		TxRunner:      dbClient,
		Outbox:        outboxService,
		Engine:        engine,
		Logger:        logg,
		Scheduling:    cfg.Scheduling,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingestion service", err)
		os.Exit(1)
	}

	pickupService, err := pickups.NewService(pickups.ServiceParams{
		Repo:     pickups.NewRepository(dbClient.DB()),
		TxRunner: dbClient,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			HealthPingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Ingestion:     ingestionService,
			Subscriptions: subscriptionService,
			Pickups:       pickupService,
			Location:      loc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
