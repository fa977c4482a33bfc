package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusmart/campusmart-backend/api/controllers"
	"github.com/campusmart/campusmart-backend/api/middleware"
	"github.com/campusmart/campusmart-backend/api/routes"
	"github.com/campusmart/campusmart-backend/internal/checkout"
	"github.com/campusmart/campusmart-backend/internal/disputes"
	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/campusmart/campusmart-backend/pkg/auth"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/campusmart/campusmart-backend/pkg/migrate"
	"github.com/campusmart/campusmart-backend/pkg/paystack"
	"github.com/campusmart/campusmart-backend/pkg/pubsub"
	"github.com/campusmart/campusmart-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fatal := func(msg string, err error) {
		logg.Error(ctx, msg, err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMarketplace(registry)

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		fatal("failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fatal("failed to run dev migrations", err)
	}

	pingers := map[string]controllers.Pinger{"db": dbClient}

	var (
		cooldown    orders.Cooldown
		rateCounter middleware.RateCounter
		idempotency redis.IdempotencyStore
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			fatal("failed to bootstrap redis", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		cooldown, rateCounter, idempotency = redisClient, redisClient, redisClient
		pingers["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured; cooldowns and rate limits are process-local and idempotency keys are ignored")
		cooldown, rateCounter = redis.NewLocalCooldown(), redis.NewLocalCounter()
	}

	gateway, err := paystack.New(cfg.Paystack, m)
	if err != nil {
		fatal("failed to create paystack gateway", err)
	}

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	inApp, err := notifications.NewInAppSink(notificationsRepo)
	if err != nil {
		fatal("failed to create in-app sink", err)
	}
	sinks := []notifications.Sink{inApp}

	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			fatal("failed to bootstrap pubsub", err)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		push, err := notifications.NewPushSink(psClient.Publisher())
		if err != nil {
			fatal("failed to create push sink", err)
		}
		sinks = append(sinks, push)
		pingers["pubsub"] = psClient
	}

	dispatcher, err := notifications.NewDispatcher(cfg.Notifications, logg, m, sinks...)
	if err != nil {
		fatal("failed to create notification dispatcher", err)
	}
	dispatcher.Start()

	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		fatal("failed to create notifications service", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg, m)
	if err != nil {
		fatal("failed to create ledger service", err)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersSvc, err := orders.NewService(ordersRepo, ledgerSvc, dbClient, cooldown, dispatcher, cfg.Fees, logg, m)
	if err != nil {
		fatal("failed to create orders service", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.NewRepository(dbClient.DB()), ordersRepo, ledgerSvc, gateway, dbClient, dispatcher, cfg.Fees, logg, m)
	if err != nil {
		fatal("failed to create checkout service", err)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	disputesSvc, err := disputes.NewService(disputes.NewRepository(dbClient.DB()), ordersRepo, usersRepo, ledgerSvc, dbClient, dispatcher, cfg.Fees, logg, m)
	if err != nil {
		fatal("failed to create disputes service", err)
	}

	resolver, err := users.NewResolver(usersRepo)
	if err != nil {
		fatal("failed to create identity resolver", err)
	}
	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		fatal("invalid jwt configuration", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:        cfg,
			Logger:        logg,
			Pingers:       pingers,
			Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			Verifier:      verifier,
			Resolver:      resolver,
			Idempotency:   idempotency,
			RateCounter:   rateCounter,
			Checkout:      checkoutSvc,
			Orders:        ordersSvc,
			Disputes:      disputesSvc,
			Ledger:        ledgerSvc,
			Notifications: notificationsSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			fatal("api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "notification dispatcher drain", err)
	}
}
