package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/features/session/store"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/upstream"
)

var (
	ErrNotAuthenticated = &upstream.Error{Kind: upstream.KindAuthentication, Status: 401, Message: "Authentication required"}
	ErrSessionExpired   = &upstream.Error{Kind: upstream.KindAuthentication, Status: 401, Message: "Session expired, please log in again"}
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (upstream.TokenPair, error)
}

// TokenSource yields a usable access token for one session. Background work
// (the exam auto-submit) holds one instead of a request.
type TokenSource func(ctx context.Context) (string, error)

// Manager is the single write/clear API over the session store.
type Manager struct {
	store     store.Store
	refresher Refresher
	window    time.Duration
	now       func() time.Time
	refreshes singleflight.Group
}

func NewManager(st store.Store, refresher Refresher, window time.Duration) *Manager {
	return &Manager{store: st, refresher: refresher, window: window, now: time.Now}
}

func (m *Manager) Store() store.Store { return m.store }

func (m *Manager) Create(ctx context.Context) (*model.Session, error) {
	now := m.now()
	s := &model.Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrSessionNotFound
	}
	return m.store.Load(ctx, id)
}

// New returns a session that lives only in memory until something is written to it.
func (m *Manager) New() *model.Session {
	now := m.now()
	return &model.Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now, Transient: true}
}

// LoadOrNew returns the session for id, or a transient one when id is unknown.
func (m *Manager) LoadOrNew(ctx context.Context, id string) (*model.Session, error) {
	if id != "" {
		s, err := m.Get(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
	}
	return m.New(), nil
}

func (m *Manager) save(ctx context.Context, s *model.Session) error {
	transient := s.Transient
	s.UpdatedAt = m.now()
	s.Transient = false
	if err := m.store.Save(ctx, s); err != nil {
		s.Transient = transient
		return err
	}
	return nil
}

// Rotate moves the session to a new id, carrying its breadcrumbs over, and
// drops the old id. Tokens and the active attempt are not carried.
func (m *Manager) Rotate(ctx context.Context, old *model.Session) (*model.Session, error) {
	crumbs, err := m.ReadBreadcrumbs(ctx, old)
	if err != nil {
		return nil, err
	}
	s, err := m.Create(ctx)
	if err != nil {
		return nil, err
	}
	if !crumbs.Empty() {
		if err := m.store.WriteBreadcrumbs(ctx, s.ID, crumbs); err != nil {
			return nil, err
		}
	}
	if err := m.Destroy(ctx, old); err != nil {
		logger.WithRequest("", old.ID).WithError(err).Warn("failed to drop rotated session")
	}
	return s, nil
}

// SaveTokens binds a token pair to the session. Role and user id come from the
// access token claims; the signature is checked upstream, not here.
func (m *Manager) SaveTokens(ctx context.Context, s *model.Session, pair upstream.TokenPair) error {
	refresh := pair.Refresh
	if refresh == "" {
		refresh = s.Tokens.Refresh
	}
	claims := parseAccess(pair.Access)
	s.Tokens = model.Tokens{
		Access:  pair.Access,
		Refresh: refresh,
		Role:    claims.role,
		UserID:  claims.userID,
	}
	return m.save(ctx, s)
}

// SetProfile fills in identity fields the access token did not carry.
func (m *Manager) SetProfile(ctx context.Context, s *model.Session, userID int64, role string) error {
	if s.Tokens.UserID == 0 {
		s.Tokens.UserID = userID
	}
	if s.Tokens.Role == "" {
		s.Tokens.Role = role
	}
	return m.save(ctx, s)
}

func (m *Manager) ClearTokens(ctx context.Context, s *model.Session) error {
	s.Tokens = model.Tokens{}
	return m.save(ctx, s)
}

// SignOut drops the tokens and the attempt binding in one write.
func (m *Manager) SignOut(ctx context.Context, s *model.Session) error {
	s.Tokens = model.Tokens{}
	s.ActiveAttemptID = 0
	if s.Transient {
		return nil
	}
	return m.save(ctx, s)
}

func (m *Manager) SetActiveAttempt(ctx context.Context, s *model.Session, attemptID int64) error {
	s.ActiveAttemptID = attemptID
	return m.save(ctx, s)
}

// ClearActiveAttempt drops the attempt binding if it still points at attemptID.
func (m *Manager) ClearActiveAttempt(ctx context.Context, sessionID string, attemptID int64) error {
	s, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if s.ActiveAttemptID != attemptID {
		return nil
	}
	return m.SetActiveAttempt(ctx, s, 0)
}

func (m *Manager) WriteBreadcrumbs(ctx context.Context, s *model.Session, b model.Breadcrumbs) error {
	if s.Transient {
		if err := m.save(ctx, s); err != nil {
			return err
		}
	}
	return m.store.WriteBreadcrumbs(ctx, s.ID, b)
}

func (m *Manager) ReadBreadcrumbs(ctx context.Context, s *model.Session) (model.Breadcrumbs, error) {
	if s.Transient {
		return model.Breadcrumbs{}, nil
	}
	return m.store.ReadBreadcrumbs(ctx, s.ID)
}

func (m *Manager) TakeBreadcrumbs(ctx context.Context, s *model.Session) (model.Breadcrumbs, error) {
	if s.Transient {
		return model.Breadcrumbs{}, nil
	}
	return m.store.TakeBreadcrumbs(ctx, s.ID)
}

func (m *Manager) ClearBreadcrumbs(ctx context.Context, s *model.Session) error {
	if s.Transient {
		return nil
	}
	return m.store.ClearBreadcrumbs(ctx, s.ID)
}

// Destroy removes the session and everything attached to it.
func (m *Manager) Destroy(ctx context.Context, s *model.Session) error {
	if s.Transient {
		return nil
	}
	return m.store.Delete(ctx, s.ID)
}

// EnsureFresh returns the access token, refreshing it first when it expires
// within the refresh window. A failed refresh signs the session out.
func (m *Manager) EnsureFresh(ctx context.Context, s *model.Session) (string, error) {
	if !s.Authenticated() {
		return "", ErrNotAuthenticated
	}
	exp := parseAccess(s.Tokens.Access).expiresAt
	if exp.IsZero() || m.now().Add(m.window).Before(exp) {
		return s.Tokens.Access, nil
	}
	return m.Refresh(ctx, s)
}

// Refresh forces a token refresh. Concurrent refreshes of one session share a call.
func (m *Manager) Refresh(ctx context.Context, s *model.Session) (string, error) {
	if s.Tokens.Refresh == "" {
		_ = m.ClearTokens(ctx, s)
		return "", ErrSessionExpired
	}

	v, err, _ := m.refreshes.Do(s.ID, func() (any, error) {
		pair, err := m.refresher.Refresh(ctx, s.Tokens.Refresh)
		if err != nil {
			return nil, err
		}
		if err := m.SaveTokens(ctx, s, pair); err != nil {
			return nil, fmt.Errorf("save refreshed tokens: %w", err)
		}
		return s.Tokens, nil
	})
	if err != nil {
		if upstream.KindOf(err) == upstream.KindNetwork || upstream.KindOf(err) == upstream.KindTimeout {
			return "", err
		}
		logger.WithRequest("", s.ID).WithError(err).Warn("token refresh failed, signing session out")
		_ = m.ClearTokens(ctx, s)
		return "", ErrSessionExpired
	}
	tokens := v.(model.Tokens)
	s.Tokens = tokens
	return tokens.Access, nil
}

// TokenSource binds a token lookup to one session id. With a non-zero userID
// it only yields tokens of that user, so work started by one user never runs
// on the tokens of whoever signs in next on the same session.
func (m *Manager) TokenSource(sessionID string, userID int64) TokenSource {
	return func(ctx context.Context) (string, error) {
		s, err := m.store.Load(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				return "", ErrSessionExpired
			}
			return "", err
		}
		if userID != 0 && s.Authenticated() && s.Tokens.UserID != userID {
			return "", ErrSessionExpired
		}
		return m.EnsureFresh(ctx, s)
	}
}

type accessClaims struct {
	expiresAt time.Time
	userID    int64
	role      string
}

func parseAccess(token string) accessClaims {
	var out accessClaims
	if token == "" {
		return out
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return out
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.expiresAt = time.Unix(int64(exp), 0)
	}
	switch v := claims["user_id"].(type) {
	case float64:
		out.userID = int64(v)
	case string:
		out.userID, _ = strconv.ParseInt(v, 10, 64)
	}
	if r, ok := claims["role"].(string); ok {
		out.role = r
	}
	return out
}
