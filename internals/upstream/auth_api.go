package upstream

import (
	"context"
	"net/http"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Login exchanges credentials for a JWT pair (Djoser: POST /auth/jwt/create/).
func (c *Client) Login(ctx context.Context, cred Credentials) (TokenPair, error) {
	var out TokenPair
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/auth/jwt/create/",
		body:   cred,
	}, &out)
	return out, err
}

// Refresh returns a new access token; Refresh is only set when the backend rotates it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var out TokenPair
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/auth/jwt/refresh/",
		body:   map[string]string{"refresh": refreshToken},
	}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var out User
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   "/users/me/",
		token:  token,
	}, &out)
	return out, err
}
