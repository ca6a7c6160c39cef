package dto

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Next     string `json:"next,omitempty"`
}

type LoginResponse struct {
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	Redirect string `json:"redirect"`
}

type SessionView struct {
	Authenticated   bool   `json:"authenticated"`
	UserID          int64  `json:"user_id,omitempty"`
	Role            string `json:"role,omitempty"`
	ActiveAttemptID int64  `json:"active_attempt_id,omitempty"`
}
