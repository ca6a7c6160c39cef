package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/users/auth/dto"
	"edumarket_bff/internals/features/users/auth/service"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/middlewares/auth"
	"edumarket_bff/internals/upstream"
)

type AuthController struct {
	svc      *service.AuthService
	validate *validator.Validate
}

func NewAuthController(svc *service.AuthService) *AuthController {
	return &AuthController{svc: svc, validate: helper.NewValidator()}
}

// POST /api/auth/login
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := ac.validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	if req.Next == "" {
		req.Next = c.Query("next")
	}

	res, sess, err := ac.svc.Login(c.UserContext(), auth.CurrentSession(c), req)
	if err != nil {
		// bad credentials are a 401 from upstream, not an expired session
		if upstream.KindOf(err) == upstream.KindAuthentication {
			return helper.JsonError(c, fiber.StatusUnauthorized, upstream.MessageOf(err, "Login failed"))
		}
		return helper.FromUpstreamError(c, err)
	}
	auth.SetCurrentSession(c, sess)
	logger.WithRequest(requestID(c), sess.ID).WithField("role", res.Role).Info("user logged in")
	return helper.JsonOK(c, "Login successful", res)
}

// POST /api/auth/refresh
func (ac *AuthController) Refresh(c *fiber.Ctx) error {
	sess := auth.CurrentSession(c)
	if !sess.Authenticated() {
		return helper.JsonErrorRedirect(c, fiber.StatusUnauthorized, "Authentication required", helper.LoginRedirect(""))
	}
	if err := ac.svc.Refresh(c.UserContext(), sess); err != nil {
		if upstream.KindOf(err) == upstream.KindAuthentication {
			return helper.JsonErrorRedirect(c, fiber.StatusUnauthorized, upstream.MessageOf(err, "Session expired"), helper.LoginRedirect(""))
		}
		return helper.FromUpstreamError(c, err)
	}
	return helper.JsonOK(c, "Token refreshed", sessionView(c))
}

// POST /api/auth/logout
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	sess := auth.CurrentSession(c)
	if err := ac.svc.Logout(c.UserContext(), sess); err != nil {
		logger.WithRequest(requestID(c), sess.ID).WithError(err).Error("logout failed")
		return helper.JsonError(c, fiber.StatusServiceUnavailable, "Session store unavailable")
	}
	return helper.JsonOK(c, "Logged out", nil)
}

// GET /api/auth/me
func (ac *AuthController) Me(c *fiber.Ctx) error {
	me, err := ac.svc.Me(c.UserContext(), auth.AccessToken(c))
	if err != nil {
		return helper.FromUpstreamError(c, err)
	}
	return helper.JsonOK(c, "Profile loaded", me)
}

// GET /api/auth/session
func (ac *AuthController) Session(c *fiber.Ctx) error {
	return helper.JsonOK(c, "ok", sessionView(c))
}

func sessionView(c *fiber.Ctx) dto.SessionView {
	s := auth.CurrentSession(c)
	if !s.Authenticated() {
		return dto.SessionView{}
	}
	return dto.SessionView{
		Authenticated:   true,
		UserID:          s.Tokens.UserID,
		Role:            s.Tokens.Role,
		ActiveAttemptID: s.ActiveAttemptID,
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("reqid").(string)
	return id
}
