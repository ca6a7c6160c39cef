package details

import (
	"github.com/gofiber/fiber/v2"

	cbtRoute "edumarket_bff/internals/features/cbt/route"
	cbtService "edumarket_bff/internals/features/cbt/service"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/upstream"
)

func CBTRoutes(app *fiber.App, client *upstream.Client, registry *cbtService.Registry, mgr *sessservice.Manager) {
	cbtRoute.CBTRoutes(app, client, registry, mgr)
}
