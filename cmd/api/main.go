package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/larkspurhq/storefront-backend/api"
	"github.com/larkspurhq/storefront-backend/api/routes"
	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/internal/cartfeed"
	"github.com/larkspurhq/storefront-backend/internal/catalog"
	"github.com/larkspurhq/storefront-backend/internal/sessions"
	"github.com/larkspurhq/storefront-backend/internal/storefront"
	"github.com/larkspurhq/storefront-backend/internal/users"
	"github.com/larkspurhq/storefront-backend/pkg/auth/session"
	"github.com/larkspurhq/storefront-backend/pkg/clock"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	"github.com/larkspurhq/storefront-backend/pkg/db"
	"github.com/larkspurhq/storefront-backend/pkg/instance"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/metrics"
	"github.com/larkspurhq/storefront-backend/pkg/migrate"
	"github.com/larkspurhq/storefront-backend/pkg/outbox"
	"github.com/larkspurhq/storefront-backend/pkg/outbox/idempotency"
	"github.com/larkspurhq/storefront-backend/pkg/pubsub"
	"github.com/larkspurhq/storefront-backend/pkg/redis"
)

// sessionDrainTimeout bounds the final cart flush after the http server has
// stopped accepting requests.
const sessionDrainTimeout = 15 * time.Second

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	sessionService, err := sessions.NewService(sessions.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	registerService, err := sessions.NewRegisterService(sessions.RegisterServiceParams{
		TxRunner: dbClient,
		UserRepoFactory: func(tx *gorm.DB) sessions.RegisterUserRepository {
			return users.NewRepository(tx)
		},
		Outbox:         outboxService,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repo: catalog.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	remoteCarts, err := cart.NewRecordStore(dbClient.DB(), dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart record store", err)
		os.Exit(1)
	}
	guestCarts, err := cart.NewGuestStore(redisClient, cfg.Cart.GuestTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create guest cart store", err)
		os.Exit(1)
	}
	migrationMark, err := cart.NewMigrationMark(redisClient, cfg.Cart.MigrationMarkTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create migration mark", err)
		os.Exit(1)
	}

	cartMetrics := metrics.NewCartMetrics(prometheus.DefaultRegisterer)
	engineCfg := cart.ConfigFromApp(cfg.Cart, cfg.FeatureFlags)

	hub, err := storefront.NewHub(storefront.HubParams{
		Engines: func(deviceID string) (*cart.Engine, error) {
			return cart.NewEngine(cart.EngineParams{
				DeviceID: deviceID,
				Remote:   remoteCarts,
				Guest:    guestCarts,
				Mark:     migrationMark,
				Clock:    clock.Real(),
				Logger:   logg,
				Metrics:  cartMetrics,
				Config:   engineCfg,
			})
		},
		Recorder:   remoteCarts,
		Clock:      clock.Real(),
		Logger:     logg,
		Metrics:    cartMetrics,
		IdleTTL:    cfg.Cart.SessionIdleTTL,
		SweepEvery: cfg.Cart.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create storefront hub", err)
		os.Exit(1)
	}

	idem, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create feed idempotency manager", err)
		os.Exit(1)
	}
	feed, err := cartfeed.NewService(pubsubClient.CartSubscription(), hub, idem, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart feed consumer", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, sessionService, registerService, catalogService, hub)
	server := api.NewServer(cfg, logg, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr(),
		"instance": instance.GetID(),
	})

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "session sweeper stopped unexpectedly", err)
			stop()
		}
	}()
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "cart feed consumer stopped unexpectedly", err)
			stop()
		}
	}()

	logg.Info(ctx, "starting api server")
	serveErr := server.Run(ctx)
	stop()

	// The http server has drained; flush whatever the engines still hold.
	drainCtx, cancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
	defer cancel()
	if err := hub.Close(drainCtx); err != nil {
		logg.Error(drainCtx, "error draining cart sessions", err)
	}

	if serveErr != nil {
		logg.Error(ctx, "api server stopped unexpectedly", serveErr)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}
