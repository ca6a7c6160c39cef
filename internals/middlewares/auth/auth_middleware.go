// internals/middlewares/auth/auth_middleware.go
package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	sessservice "edumarket_bff/internals/features/session/service"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/upstream"
)

// SessionMiddleware loads the caller's session. A missing or unknown id gets
// a transient session, stored and sent back as a cookie only once a handler
// writes to it. A handler that swaps the session (login) gets the new id sent.
func SessionMiddleware(mgr *sessservice.Manager, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := extractSessionID(c)
		s, err := mgr.LoadOrNew(c.UserContext(), id)
		if err != nil {
			logger.WithRequest(requestID(c), id).WithError(err).Error("session store unavailable")
			return helper.JsonError(c, fiber.StatusServiceUnavailable, "Session store unavailable")
		}
		c.Locals(localSession, s)

		err = c.Next()
		if cur := CurrentSession(c); cur != nil && !cur.Transient && cur.ID != id {
			setSessionCookie(c, cur.ID, ttl)
		}
		return err
	}
}

// AuthMiddleware requires upstream tokens and refreshes them when they are
// about to expire. Missing or rejected tokens answer 401 with a login redirect.
func AuthMiddleware(mgr *sessservice.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := CurrentSession(c)
		if s == nil {
			return helper.JsonErrorRedirect(c, fiber.StatusUnauthorized, "Authentication required", helper.LoginRedirect(c.OriginalURL()))
		}

		token, err := mgr.EnsureFresh(c.UserContext(), s)
		if err != nil {
			if upstream.KindOf(err) == upstream.KindAuthentication {
				return helper.JsonErrorRedirect(c, fiber.StatusUnauthorized, upstream.MessageOf(err, "Authentication required"), helper.LoginRedirect(c.OriginalURL()))
			}
			return helper.FromUpstreamError(c, err)
		}
		c.Locals(localAccess, token)
		c.Locals("user_id", s.Tokens.UserID)
		c.Locals("userRole", s.Tokens.Role)
		return c.Next()
	}
}

// SignOutOnUnauthorized clears the session tokens when a handler hit an
// upstream 401, so the next request goes straight to login.
func SignOutOnUnauthorized(mgr *sessservice.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if c.Response().StatusCode() == fiber.StatusUnauthorized || upstream.KindOf(err) == upstream.KindAuthentication {
			if s := CurrentSession(c); s != nil && s.Authenticated() {
				if cerr := mgr.ClearTokens(c.UserContext(), s); cerr != nil {
					logger.WithRequest(requestID(c), s.ID).WithError(cerr).Warn("failed to clear tokens")
				}
			}
		}
		return err
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("reqid").(string)
	return id
}
