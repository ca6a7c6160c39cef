package route

import (
	"github.com/gofiber/fiber/v2"

	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/users/auth/controller"
	"edumarket_bff/internals/features/users/auth/service"
	rateLimiter "edumarket_bff/internals/middlewares"
	"edumarket_bff/internals/middlewares/auth"
)

func AuthRoutes(app fiber.Router, api service.API, mgr *sessservice.Manager, attempts service.Attempts) {
	authController := controller.NewAuthController(service.NewAuthService(api, mgr, attempts))

	// Base: /api/auth
	baseAuth := app.Group("/api/auth")

	baseAuth.Post("/login", rateLimiter.LoginRateLimiter(), authController.Login)
	baseAuth.Post("/refresh", authController.Refresh)
	baseAuth.Post("/logout", authController.Logout)
	baseAuth.Get("/session", authController.Session)

	baseAuth.Get("/me", auth.AuthMiddleware(mgr), auth.SignOutOnUnauthorized(mgr), authController.Me)
}
