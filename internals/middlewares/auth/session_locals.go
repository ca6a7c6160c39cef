// internals/middlewares/auth/session_locals.go
package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/session/model"
)

const (
	SessionCookie = "edm_session"
	SessionHeader = "X-Session-ID"

	localSession = "session"
	localAccess  = "access_token"
)

/* ======== Extractors ======== */

// extractSessionID reads the session id from the cookie, falling back to the header.
func extractSessionID(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Cookies(SessionCookie)); id != "" {
		return id
	}
	return strings.Trim(strings.TrimSpace(c.Get(SessionHeader)), "\"'")
}

func setSessionCookie(c *fiber.Ctx, id string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(ttl),
	})
	c.Set(SessionHeader, id)
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Expires:  time.Unix(0, 0),
	})
}

/* ======== Locals ======== */

// CurrentSession returns the session loaded by SessionMiddleware.
func CurrentSession(c *fiber.Ctx) *model.Session {
	s, _ := c.Locals(localSession).(*model.Session)
	return s
}

// SetCurrentSession replaces the request's session, e.g. after a login rotated it.
func SetCurrentSession(c *fiber.Ctx, s *model.Session) {
	c.Locals(localSession, s)
}

// AccessToken returns the fresh bearer token set by AuthMiddleware.
func AccessToken(c *fiber.Ctx) string {
	t, _ := c.Locals(localAccess).(string)
	return t
}
