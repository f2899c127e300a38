package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/api/routes"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/auth"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/catalog"
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

	providerMetrics := metrics.NewProviderMetrics(prometheus.DefaultRegisterer)
	providerClient, err := voucherdeals.NewClient(cfg.Provider, logg, providerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher provider client", err)
		os.Exit(1)
	}

	voucherService, err := vouchers.NewService(
		vouchers.NewRepository(dbClient.DB()),
		catalog.NewRepository(dbClient.DB()),
		providerClient,
		logg,
		cfg.Reservation,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(users.NewRepository(dbClient.DB()), cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, authService, voucherService, notificationsService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
