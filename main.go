package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"edumarket_bff/internals/configs"
	database "edumarket_bff/internals/databases"
	cbtRepository "edumarket_bff/internals/features/cbt/repository"
	cbtService "edumarket_bff/internals/features/cbt/service"
	paymentRepository "edumarket_bff/internals/features/payments/repository"
	paymentService "edumarket_bff/internals/features/payments/service"
	"edumarket_bff/internals/features/session/scheduler"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/session/store"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
	middlewares "edumarket_bff/internals/middlewares"
	routes "edumarket_bff/internals/route"
	"edumarket_bff/internals/upstream"
)

func main() {
	configs.LoadEnv()
	log := logger.Init("edumarket-bff")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// 🔌 DB + Redis; both are optional and fall back to memory
	if err := database.ConnectDB(); err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	database.TunePool()
	if err := database.Migrate(); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	database.WarmUpQueries()

	if err := database.ConnectRedis(ctx); err != nil {
		log.WithError(err).Fatal("redis unavailable")
	}

	sessionStore, err := newSessionStore()
	if err != nil {
		log.WithError(err).Fatal("session store setup failed")
	}

	client := upstream.NewClient(configs.APIBase,
		upstream.WithTimeout(configs.UpstreamTimeout),
		upstream.WithMetrics(m),
	)
	sessions := sessservice.NewManager(sessionStore, client, configs.TokenRefreshWindow)

	var (
		attempts cbtRepository.AttemptRepository
		intents  paymentRepository.IntentRepository
		dbPing   func(context.Context) error
	)
	if database.DB != nil {
		attempts = cbtRepository.NewGormAttemptRepository(database.DB)
		intents = paymentRepository.NewGormIntentRepository(database.DB)
		dbPing = database.PingDB
	} else {
		attempts = cbtRepository.NewMemoryAttemptRepository()
		intents = paymentRepository.NewMemoryIntentRepository()
	}

	registry := cbtService.NewRegistry(client, attempts, sessions, m, cbtService.RegistryConfig{
		PageSize: configs.ExamPageSize,
	})
	tokensFor := func(sessionID string, userID int64) cbtService.TokenSource {
		return cbtService.TokenSource(sessions.TokenSource(sessionID, userID))
	}
	cbtService.NewSweeper(attempts, client, registry, tokensFor, sessions, m).Start(ctx, configs.AttemptSweepInterval)

	if mem, ok := sessionStore.(*store.MemoryStore); ok {
		scheduler.StartSessionCleanupScheduler(ctx, mem, configs.SessionCleanupEvery)
	}

	payments := paymentService.NewPaymentService(client, sessions, intents, m, paymentService.Config{
		PaystackKey:  configs.PaystackPubKey,
		SuccessDelay: configs.SuccessRedirectDelay,
		FailureDelay: configs.FailureRedirectDelay,
	})

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
		ErrorHandler:            helper.FromFiberError,
	})
	middlewares.SetupMiddlewares(app, m)
	middlewares.ServerTimeouts(app)

	routes.SetupRoutes(app, routes.Deps{
		Upstream:   client,
		Store:      sessionStore,
		Sessions:   sessions,
		Registry:   registry,
		Payments:   payments,
		Metrics:    m,
		SessionTTL: configs.SessionTTL,
		DBPing:     dbPing,
	})

	go func() {
		log.Infof("✅ Listening on :%s", configs.Port)
		if err := app.Listen("0.0.0.0:" + configs.Port); err != nil {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)

	stop()
	registry.Shutdown()
	if err := sessionStore.Close(); err != nil {
		log.WithError(err).Warn("failed to close session store")
	}
	database.Close()
}

// newSessionStore picks Redis when REDIS_URL is set, memory otherwise.
func newSessionStore() (store.Store, error) {
	if database.Redis == nil {
		return store.NewMemoryStore(configs.SessionTTL, configs.BreadcrumbTTL), nil
	}
	sealer, err := store.NewSealer(configs.SessionSecret)
	if err != nil {
		return nil, err
	}
	return store.NewRedisStore(database.Redis, sealer, configs.SessionTTL, configs.BreadcrumbTTL), nil
}
