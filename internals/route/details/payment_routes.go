package details

import (
	"github.com/gofiber/fiber/v2"

	paymentRoute "edumarket_bff/internals/features/payments/route"
	paymentService "edumarket_bff/internals/features/payments/service"
	sessservice "edumarket_bff/internals/features/session/service"
)

func PaymentRoutes(app *fiber.App, svc *paymentService.PaymentService, mgr *sessservice.Manager) {
	paymentRoute.PaymentRoutes(app, svc, mgr)
}
