package service

import (
	"context"
	"strings"

	"edumarket_bff/internals/constants"
	"edumarket_bff/internals/features/session/model"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/users/auth/dto"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/upstream"
)

// API is the part of the upstream client the auth flow needs.
type API interface {
	Login(ctx context.Context, cred upstream.Credentials) (upstream.TokenPair, error)
	Me(ctx context.Context, token string) (upstream.User, error)
}

// Attempts ends the exam attempt a session is taking.
type Attempts interface {
	Forget(sessionID string)
}

type AuthService struct {
	api      API
	sessions *sessservice.Manager
	attempts Attempts
}

func NewAuthService(api API, sessions *sessservice.Manager, attempts Attempts) *AuthService {
	return &AuthService{api: api, sessions: sessions, attempts: attempts}
}

// Login exchanges credentials for tokens and binds them to a new session id.
// The returned session replaces the caller's one.
func (s *AuthService) Login(ctx context.Context, old *model.Session, req dto.LoginRequest) (dto.LoginResponse, *model.Session, error) {
	pair, err := s.api.Login(ctx, upstream.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return dto.LoginResponse{}, nil, err
	}
	s.endAttempt(old.ID)
	sess, err := s.sessions.Rotate(ctx, old)
	if err != nil {
		return dto.LoginResponse{}, nil, err
	}
	if err := s.sessions.SaveTokens(ctx, sess, pair); err != nil {
		return dto.LoginResponse{}, nil, err
	}

	role := sess.Tokens.Role
	if role == "" {
		// tokens without a role claim
		me, err := s.api.Me(ctx, pair.Access)
		if err != nil {
			logger.WithRequest("", sess.ID).WithError(err).Warn("could not load profile after login")
		} else {
			role = me.Role
			if err := s.sessions.SetProfile(ctx, sess, me.ID, me.Role); err != nil {
				return dto.LoginResponse{}, nil, err
			}
		}
	}

	redirect := SafeNext(req.Next)
	if redirect == "" {
		redirect = RoleHome(role)
	}
	return dto.LoginResponse{UserID: sess.Tokens.UserID, Role: role, Redirect: redirect}, sess, nil
}

// Logout ends the session's exam attempt and drops its tokens and payment breadcrumbs.
func (s *AuthService) Logout(ctx context.Context, sess *model.Session) error {
	s.endAttempt(sess.ID)
	if err := s.sessions.SignOut(ctx, sess); err != nil {
		return err
	}
	return s.sessions.ClearBreadcrumbs(ctx, sess)
}

func (s *AuthService) endAttempt(sessionID string) {
	if s.attempts != nil {
		s.attempts.Forget(sessionID)
	}
}

func (s *AuthService) Me(ctx context.Context, token string) (upstream.User, error) {
	return s.api.Me(ctx, token)
}

var roleHomes = map[string]string{
	constants.RoleStudent:     "/student/overview",
	constants.RoleInstitution: "/institution/overview",
	constants.RoleTutor:       "/tutor/overview",
	constants.RoleAdmin:       "/admin",
	constants.RoleSuperAdmin:  "/admin",
}

// RoleHome is the landing page for a role; unknown roles land on /student.
func RoleHome(role string) string {
	if home, ok := roleHomes[strings.ToLower(strings.TrimSpace(role))]; ok {
		return home
	}
	return "/student"
}

// SafeNext accepts only same-origin absolute paths.
func SafeNext(next string) string {
	return helper.SafePath(next)
}

// Refresh forces a token refresh; a rejected refresh token signs the session out.
func (s *AuthService) Refresh(ctx context.Context, sess *model.Session) error {
	_, err := s.sessions.Refresh(ctx, sess)
	return err
}
