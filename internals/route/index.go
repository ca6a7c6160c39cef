package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	cbtService "edumarket_bff/internals/features/cbt/service"
	paymentService "edumarket_bff/internals/features/payments/service"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/session/store"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
	"edumarket_bff/internals/middlewares/auth"
	routeDetails "edumarket_bff/internals/route/details"
	"edumarket_bff/internals/upstream"
)

var startTime time.Time

// Deps is everything the route tree hands to the features.
type Deps struct {
	Upstream   *upstream.Client
	Store      store.Store
	Sessions   *sessservice.Manager
	Registry   *cbtService.Registry
	Payments   *paymentService.PaymentService
	Metrics    *metrics.Metrics
	SessionTTL time.Duration

	// DBPing is nil when attempts and intents live in memory.
	DBPing func(ctx context.Context) error
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()

	BaseRoutes(app, d)

	// every /api route runs with a loaded session
	app.Use("/api", auth.SessionMiddleware(d.Sessions, d.SessionTTL))

	logger.Log.Info("[INFO] Setting up AuthRoutes...")
	routeDetails.AuthRoutes(app, d.Upstream, d.Sessions, d.Registry)

	logger.Log.Info("[INFO] Setting up CBTRoutes...")
	routeDetails.CBTRoutes(app, d.Upstream, d.Registry, d.Sessions)

	logger.Log.Info("[INFO] Setting up PaymentRoutes...")
	routeDetails.PaymentRoutes(app, d.Payments, d.Sessions)
}
