package details

import (
	"github.com/gofiber/fiber/v2"

	cbtService "edumarket_bff/internals/features/cbt/service"
	sessservice "edumarket_bff/internals/features/session/service"
	authRoute "edumarket_bff/internals/features/users/auth/route"
	"edumarket_bff/internals/upstream"
)

func AuthRoutes(app *fiber.App, client *upstream.Client, mgr *sessservice.Manager, registry *cbtService.Registry) {
	authRoute.AuthRoutes(app, client, mgr, registry)
}
