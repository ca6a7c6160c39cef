package route

import (
	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/cbt/controller"
	"edumarket_bff/internals/features/cbt/service"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/middlewares/auth"
)

// CBTRoutes mounts the exam endpoints under /api/cbt. The catalog is public;
// everything touching an attempt needs a signed-in session.
func CBTRoutes(app fiber.Router, catalog service.CatalogAPI, registry *service.Registry, mgr *sessservice.Manager) {
	ctl := controller.NewCBTController(catalog, registry, mgr)

	cbt := app.Group("/api/cbt")
	cbt.Get("/exams", ctl.ListExams)
	cbt.Get("/exams/:exam_id/subjects", ctl.ListSubjects)

	// Group middleware would also run for the public routes above, so the
	// guard is attached per route.
	guard := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{auth.AuthMiddleware(mgr), auth.SignOutOnUnauthorized(mgr), h}
	}

	cbt.Get("/activation-status", guard(ctl.ActivationStatus)...)
	cbt.Get("/attempts", guard(ctl.History)...)
	cbt.Post("/attempts", guard(ctl.StartAttempt)...)

	// the session's live attempt
	cbt.Get("/attempts/active", guard(ctl.GetActive)...)
	cbt.Delete("/attempts/active", guard(ctl.Discard)...)
	cbt.Get("/attempts/active/index", guard(ctl.GetIndex)...)
	cbt.Get("/attempts/active/pages/:page", guard(ctl.GetPage)...)
	cbt.Get("/attempts/active/questions/:number", guard(ctl.Jump)...)
	cbt.Post("/attempts/active/answers", guard(ctl.SelectAnswer)...)
	cbt.Post("/attempts/active/answers/:question_id/retry", guard(ctl.RetryAnswer)...)
	cbt.Post("/attempts/active/submit", guard(ctl.Submit)...)

	cbt.Get("/attempts/:id/performance", guard(ctl.Performance)...)
}
