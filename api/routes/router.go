package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paymall/paymall-backend/api/controllers"
	webhookcontrollers "github.com/paymall/paymall-backend/api/controllers/webhooks"
	"github.com/paymall/paymall-backend/api/middleware"
	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/internal/orders"
	"github.com/paymall/paymall-backend/internal/payments"
	"github.com/paymall/paymall-backend/pkg/config"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/redis"
)

// Deps is everything the HTTP surface needs. Redis may be nil, which turns
// off Idempotency-Key replay and the redeem rate limit.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Metrics   prometheus.Gatherer
	Carts     cart.Service
	Orders    orders.Service
	Payments  payments.Service
	ExitCodes exitotp.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var idempotencyStore redis.IdempotencyStore
	pingers := map[string]controllers.Pinger{"db": deps.DB}
	redeemLimiter := func(next http.Handler) http.Handler { return next }
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		pingers["redis"] = deps.Redis
		redeemPolicy := middleware.NewRateLimitPolicy(
			"redeem",
			cfg.RateLimit.RedeemWindow,
			cfg.RateLimit.RedeemIPLimit,
			"orderId",
			cfg.RateLimit.RedeemOrderLimit,
		)
		redeemLimiter = middleware.RateLimit(redeemPolicy, deps.Redis, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payments/{attemptId}", webhookcontrollers.PaymentCallback(cfg.Checkout.WebhookSecret, deps.Payments, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Carts, logg))
			r.Delete("/", controllers.CartClear(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Carts, logg))
			r.Post("/merge", controllers.CartMerge(deps.Carts, logg))
		})

		r.Post("/checkout", controllers.Checkout(deps.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(deps.Orders, logg))
				r.Post("/cancel", controllers.OrderCancel(deps.Orders, logg))
				r.Get("/payments", controllers.PaymentAttemptsList(deps.Payments, logg))
				r.Post("/payments", controllers.PaymentAttemptCreate(deps.Payments, logg))
				r.Get("/exit-code", controllers.ExitCodeGet(deps.ExitCodes, logg))
				r.With(middleware.RequireExitStaff(logg), redeemLimiter).
					Post("/exit-code/redeem", controllers.ExitCodeRedeem(deps.ExitCodes, logg))
			})
		})

		r.Post("/payments/{attemptId}/confirm", controllers.PaymentConfirm(deps.Payments, logg))
	})

	return r
}
