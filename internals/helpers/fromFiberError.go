package helper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/upstream"
)

// FromFiberError turns a *fiber.Error into the standard JSON envelope.
// Anything else falls back to 500 with the original message.
func FromFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return JsonError(c, fe.Code, fe.Message)
	}
	return JsonError(c, fiber.StatusInternalServerError, err.Error())
}

// LoginRedirect is where an expired session sends the client.
func LoginRedirect(next string) string {
	if next == "" {
		return "/login?expired=true"
	}
	return fmt.Sprintf("/login?next=%s&expired=true", url.QueryEscape(next))
}

// SafePath accepts only same-origin absolute paths, so redirects cannot leave the site.
func SafePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return ""
	}
	// browsers drop tabs and newlines, which can turn "/\t/x" into "//x"
	if strings.IndexFunc(p, unicode.IsControl) >= 0 {
		return ""
	}
	return p
}

// FromUpstreamError maps the upstream error taxonomy onto HTTP responses.
func FromUpstreamError(c *fiber.Ctx, err error) error {
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		return FromFiberError(c, err)
	}
	switch ue.Kind {
	case upstream.KindAuthentication:
		return JsonErrorRedirect(c, fiber.StatusUnauthorized, "Your session has expired. Please log in again.", LoginRedirect(c.Path()))
	case upstream.KindAuthorization:
		return JsonError(c, fiber.StatusForbidden, ue.Message)
	case upstream.KindValidation:
		if len(ue.Fields) > 0 {
			return JsonValidationError(c, ue.Message, ue.Fields)
		}
		return JsonError(c, fiber.StatusBadRequest, ue.Message)
	case upstream.KindNotFound:
		return JsonError(c, fiber.StatusNotFound, ue.Message)
	case upstream.KindDomain:
		return JsonError(c, fiber.StatusConflict, ue.Message)
	case upstream.KindTimeout:
		return JsonError(c, fiber.StatusGatewayTimeout, "Request timed out, try again")
	default:
		return JsonError(c, fiber.StatusBadGateway, "Request failed, try again")
	}
}
