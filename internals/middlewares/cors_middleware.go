// middlewares/cors.go

package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"edumarket_bff/internals/configs"
)

// CorsMiddleware allows the SPA origins from CORS_ORIGINS with credentials.
func CorsMiddleware() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     strings.Join(configs.CorsOrigins, ", "),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Session-ID, X-Request-ID",
		ExposeHeaders:    "X-Session-ID, X-Request-ID",
		AllowCredentials: true,
	})
}
