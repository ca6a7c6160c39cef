package route

import (
	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/payments/controller"
	"edumarket_bff/internals/features/payments/service"
	sessservice "edumarket_bff/internals/features/session/service"
	rateLimiter "edumarket_bff/internals/middlewares"
	"edumarket_bff/internals/middlewares/auth"
)

// PaymentRoutes mounts checkout and verification under /api/payments.
// The callback and receipt ack only need the session: an expired login is
// reported inside the outcome instead of a 401.
func PaymentRoutes(app fiber.Router, svc *service.PaymentService, mgr *sessservice.Manager) {
	ctl := controller.NewPaymentController(svc)

	pay := app.Group("/api/payments")
	pay.Get("/callback", ctl.Callback)
	pay.Post("/receipt/ack", ctl.AckReceipt)

	guard := func(h ...fiber.Handler) []fiber.Handler {
		return append([]fiber.Handler{auth.AuthMiddleware(mgr), auth.SignOutOnUnauthorized(mgr)}, h...)
	}

	pay.Post("/quote", guard(ctl.Quote)...)
	pay.Get("/activation-fee", guard(ctl.ActivationFee)...)
	pay.Post("/initiate", guard(rateLimiter.PaymentRateLimiter(), ctl.Initiate)...)
	pay.Post("/verify/:reference", guard(ctl.Verify)...)
	pay.Get("/history", guard(ctl.History)...)
}
