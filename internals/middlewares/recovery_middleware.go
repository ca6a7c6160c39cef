package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"edumarket_bff/internals/helpers/logger"
)

// RecoveryMiddleware turns a panic into a 500 and logs the stack.
func RecoveryMiddleware() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			id, _ := c.Locals("reqid").(string)
			logger.WithRequest(id, "").WithField("panic", e).Error("recovered from panic")
		},
	})
}
