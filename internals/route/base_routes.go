package routes

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

func BaseRoutes(app *fiber.App, d Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("edumarket BFF is running 🚀")
	})

	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		serverStatus := "OK"
		httpStatus := fiber.StatusOK

		storeStatus := "Connected"
		if d.Store == nil || d.Store.Ping(ctx) != nil {
			storeStatus = "Session store error"
			serverStatus = "DOWN"
			httpStatus = fiber.StatusServiceUnavailable
		}

		dbStatus := "In memory"
		if d.DBPing != nil {
			dbStatus = "Connected"
			if err := d.DBPing(ctx); err != nil {
				dbStatus = "Database connection error"
				serverStatus = "DOWN"
				httpStatus = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":         serverStatus,
			"session_store":  storeStatus,
			"database":       dbStatus,
			"active_exams":   d.Registry.ActiveCount(),
			"server_time":    time.Now().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"environment":    os.Getenv("RAILWAY_ENVIRONMENT"),
		})
	})
}
