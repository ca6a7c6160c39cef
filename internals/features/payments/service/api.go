package service

import (
	"context"
	"errors"
	"time"

	sessmodel "edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/upstream"
)

var (
	ErrNoCheckoutLink   = errors.New("payment gateway returned no checkout link")
	ErrFeeNotConfigured = errors.New("activation fee not configured")
	ErrNoReceiptPending = errors.New("no payment receipt awaiting acknowledgment")
)

const (
	msgCancelled      = "Payment was cancelled"
	msgNoReference    = "No payment reference found"
	msgSessionExpired = "Session expired. Please log in again."
	msgVerifyFailed   = "Payment verification failed. Please contact support."
	msgVerifyError    = "Payment verification failed"
	msgVerified       = "Payment verified! You now have access to the course/diploma."
	msgReceipt        = "Payment verified! Review your diploma receipt to continue."
	msgAcknowledged   = "Enrollment confirmed"
)

// API is the part of the upstream client the checkout flow calls.
type API interface {
	InitiatePayment(ctx context.Context, token string, gw upstream.Gateway, req upstream.InitiateRequest) (upstream.InitiateResponse, error)
	VerifyPayment(ctx context.Context, token string, gw upstream.Gateway, reference string) (upstream.VerifyResponse, error)
	SplitConfig(ctx context.Context, token string) (upstream.SplitConfig, error)
	ApplyPromo(ctx context.Context, token string, req upstream.PromoRequest, meta map[string]any) (upstream.PromoResult, error)
	ActivationFee(ctx context.Context, token, activationType string, examID, subjectID int64) (upstream.ActivationFee, error)
	PaymentHistory(ctx context.Context, token string, page, pageSize int) (upstream.Page[upstream.PaymentRecord], error)
	Me(ctx context.Context, token string) (upstream.User, error)
}

// Sessions is the token and breadcrumb API of the session manager.
type Sessions interface {
	EnsureFresh(ctx context.Context, s *sessmodel.Session) (string, error)
	WriteBreadcrumbs(ctx context.Context, s *sessmodel.Session, b sessmodel.Breadcrumbs) error
	ReadBreadcrumbs(ctx context.Context, s *sessmodel.Session) (sessmodel.Breadcrumbs, error)
	TakeBreadcrumbs(ctx context.Context, s *sessmodel.Session) (sessmodel.Breadcrumbs, error)
	ClearBreadcrumbs(ctx context.Context, s *sessmodel.Session) error
}

type Config struct {
	// PaystackKey enables the inline popup when Paystack returns no hosted URL.
	PaystackKey  string
	SuccessDelay time.Duration
	FailureDelay time.Duration
}
