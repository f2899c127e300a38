package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/cron"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/notifications"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/users"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/vouchers"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/metrics"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/migrate"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/redis"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/voucherdeals"
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

	providerMetrics := metrics.NewProviderMetrics(prometheus.DefaultRegisterer)
	providerClient, err := voucherdeals.NewClient(cfg.Provider, logg, providerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher provider client", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	reconcileJob, err := cron.NewVoucherReconcileJob(cron.VoucherReconcileJobParams{
		Logger:       logg,
		VoucherRepo:  vouchers.NewRepository(dbClient.DB()),
		UserRepo:     users.NewRepository(dbClient.DB()),
		Provider:     providerClient,
		Notification: notificationsService,
		Limit:        cfg.Sweeper.BatchLimit,
		Lookback:     cfg.Sweeper.Lookback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher reconcile job", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger: logg,
		DB:     dbClient.DB(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(reconcileJob, expiryJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sweeper.Interval,
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

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
