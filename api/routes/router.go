package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/larkspurhq/storefront-backend/api/controllers"
	"github.com/larkspurhq/storefront-backend/api/middleware"
	"github.com/larkspurhq/storefront-backend/internal/catalog"
	"github.com/larkspurhq/storefront-backend/internal/sessions"
	"github.com/larkspurhq/storefront-backend/internal/storefront"
	"github.com/larkspurhq/storefront-backend/pkg/auth/session"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	"github.com/larkspurhq/storefront-backend/pkg/db"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager sessionManager,
	sessionService sessions.Service,
	registerService sessions.RegisterService,
	catalogService catalog.Service,
	hub *storefront.Hub,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.DeviceID(logg),
		// Mounted before routing so rule matching sees the request path.
		middleware.Idempotency(redisClient, logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(sessionService, hub, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(registerService, sessionService, hub, logg))
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, hub, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductsList(catalogService, logg))
		r.Get("/{slug}", controllers.ProductDetail(catalogService, logg))
	})

	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Post("/hydrate", controllers.StorefrontHydrate(hub, cfg.JWT, sessionManager, logg))
		r.Get("/state", controllers.StorefrontState(hub, logg))
		r.Route("/cart", func(r chi.Router) {
			r.Post("/items", controllers.CartAddItem(hub, catalogService, logg))
			r.Patch("/items/{productId}/{variantId}", controllers.CartSetQuantity(hub, logg))
			r.Delete("/items/{productId}/{variantId}", controllers.CartRemoveItem(hub, logg))
			r.Post("/sync", controllers.CartSync(hub, logg))
		})
	})

	return r
}
