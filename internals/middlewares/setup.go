package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"

	"edumarket_bff/internals/configs"
	"edumarket_bff/internals/helpers/metrics"
	accessLog "edumarket_bff/internals/middlewares/logger"
)

// SetupMiddlewares installs the global chain. Order matters: recovery first so
// it sees panics from everything below it.
func SetupMiddlewares(app *fiber.App, m *metrics.Metrics) {
	app.Use(RecoveryMiddleware())
	app.Use(RequestContext(configs.RequestTimeout))
	app.Use(accessLog.LoggerMiddleware(configs.LogTimeZone))
	app.Use(CorsMiddleware())
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())
	app.Use(GlobalRateLimiter())
	app.Use(m.Middleware())
}

// ServerTimeouts are applied to the underlying fasthttp server.
func ServerTimeouts(app *fiber.App) {
	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second
}
