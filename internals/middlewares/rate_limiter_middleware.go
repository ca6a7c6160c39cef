package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	helper "edumarket_bff/internals/helpers"
)

func ipLimiter(max int, window time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, message)
		},
	})
}

// Global limiter for every endpoint
func GlobalRateLimiter() fiber.Handler {
	return ipLimiter(100, time.Minute, "Too many requests. Please try again later.")
}

// Stricter limiter for the login route
func LoginRateLimiter() fiber.Handler {
	return ipLimiter(5, time.Minute, "Too many login attempts. Please wait a moment.")
}

// PaymentRateLimiter guards payment initiation; each call opens a gateway transaction.
func PaymentRateLimiter() fiber.Handler {
	return ipLimiter(10, 5*time.Minute, "Too many payment attempts. Please try again in a few minutes.")
}
