package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/api/controllers"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/api/middleware"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/auth"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/notifications"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/vouchers"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	authService auth.Service,
	voucherService vouchers.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, pingerOrNil(redisClient)))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.LoginRateLimit(cfg.LoginLimit, limiterOrNil(redisClient), logg)).
			Post("/login", controllers.AuthLogin(authService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/vouchers", func(r chi.Router) {
			r.Post("/lookup", controllers.VoucherLookup(voucherService, logg))
			r.Post("/redeem", controllers.VoucherRedeem(voucherService, logg))
			r.Post("/{reservationId}/link", controllers.VoucherLinkOrder(voucherService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}

type dependencyPinger interface {
	Ping(context.Context) error
}

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Typed-nil guards: a nil *redis.Client boxed into an interface would slip
// past the downstream nil checks and panic on first use.
func pingerOrNil(c *redis.Client) dependencyPinger {
	if c == nil {
		return nil
	}
	return c
}

func limiterOrNil(c *redis.Client) rateLimiterStore {
	if c == nil {
		return nil
	}
	return c
}
