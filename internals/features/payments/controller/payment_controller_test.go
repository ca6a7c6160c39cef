package controller_test

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edumarket_bff/internals/features/payments/repository"
	payroute "edumarket_bff/internals/features/payments/route"
	"edumarket_bff/internals/features/payments/service"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/session/store"
	"edumarket_bff/internals/middlewares/auth"
	"edumarket_bff/internals/upstream"
)

/* ---------- upstream stub ---------- */

type stubPayments struct {
	mu       sync.Mutex
	verifyFn func(ref string) upstream.VerifyResponse
	verifies int
	fee      upstream.ActivationFee
}

func (s *stubPayments) InitiatePayment(_ context.Context, _ string, gw upstream.Gateway, _ upstream.InitiateRequest) (upstream.InitiateResponse, error) {
	if gw == upstream.GatewayFlutterwave {
		return upstream.InitiateResponse{Reference: "FLW-1", Link: "https://checkout.flutterwave.com/pay/1"}, nil
	}
	return upstream.InitiateResponse{Reference: "PS-1", AuthorizationURL: "https://checkout.paystack.com/1"}, nil
}

func (s *stubPayments) VerifyPayment(_ context.Context, _ string, _ upstream.Gateway, ref string) (upstream.VerifyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifies++
	if s.verifyFn != nil {
		return s.verifyFn(ref), nil
	}
	return upstream.VerifyResponse{Status: "success", Raw: map[string]any{"status": "success"}}, nil
}

func (s *stubPayments) SplitConfig(context.Context, string) (upstream.SplitConfig, error) {
	return service.DefaultSplit, nil
}

func (s *stubPayments) ApplyPromo(context.Context, string, upstream.PromoRequest, map[string]any) (upstream.PromoResult, error) {
	return upstream.PromoResult{}, nil
}

func (s *stubPayments) ActivationFee(context.Context, string, string, int64, int64) (upstream.ActivationFee, error) {
	return s.fee, nil
}

func (s *stubPayments) PaymentHistory(context.Context, string, int, int) (upstream.Page[upstream.PaymentRecord], error) {
	return upstream.Page[upstream.PaymentRecord]{
		Items: []upstream.PaymentRecord{{"reference": "PS-1"}, {"reference": "PS-0"}},
		Count: 42,
	}, nil
}

func (s *stubPayments) Me(context.Context, string) (upstream.User, error) {
	return upstream.User{ID: 3, Email: "ada@example.com"}, nil
}

func (s *stubPayments) verifyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifies
}

/* ---------- app ---------- */

type testEnv struct {
	app       *fiber.App
	up        *stubPayments
	mgr       *sessservice.Manager
	sessionID string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	up := &stubPayments{}
	mgr := sessservice.NewManager(store.NewMemoryStore(time.Hour, time.Hour), nil, time.Minute)
	svc := service.NewPaymentService(up, mgr, repository.NewMemoryIntentRepository(), nil, service.Config{
		SuccessDelay: 2 * time.Second,
		FailureDelay: 3 * time.Second,
	})

	app := fiber.New()
	app.Use(auth.SessionMiddleware(mgr, time.Hour))
	payroute.PaymentRoutes(app, svc, mgr)

	sess, err := mgr.Create(ctx)
	require.NoError(t, err)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":     time.Now().Add(time.Hour).Unix(),
		"user_id": 3,
		"role":    "student",
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, mgr.SaveTokens(ctx, sess, upstream.TokenPair{Access: signed, Refresh: "r"}))

	return &testEnv{app: app, up: up, mgr: mgr, sessionID: sess.ID}
}

type envelope struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Redirect string              `json:"redirect"`
	Errors   map[string][]string `json:"errors"`
	Data     any                 `json:"data"`
	Page     map[string]any      `json:"pagination"`
}

func (e envelope) data() map[string]any {
	m, _ := e.Data.(map[string]any)
	return m
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SessionHeader, e.sessionID)

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 {
		_ = sonic.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

/* ---------- tests ---------- */

func TestCancelledCallbackNeverVerifies(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, fiber.MethodGet, "/api/payments/callback?tx_ref=XYZ&status=cancelled", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Payment was cancelled", body.Message)
	assert.Equal(t, "error", body.data()["status"])
	assert.Equal(t, "flutterwave", body.data()["gateway"])
	assert.Equal(t, 0, env.up.verifyCount())
}

func TestInitiateThenCallback(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, fiber.MethodPost, "/api/payments/initiate", map[string]any{
		"item_type": "course", "item_id": 12, "amount": "15000", "gateway": "Flutterwave",
	})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "redirect", body.data()["action"])
	assert.Equal(t, "https://checkout.flutterwave.com/pay/1", body.data()["url"])

	code, body = env.do(t, fiber.MethodGet, "/api/payments/callback?status=successful&tx_ref=FLW-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "success", body.data()["status"])
	assert.Equal(t, "/student/courses", body.data()["redirect"])
	assert.Equal(t, float64(2000), body.data()["redirect_after_ms"])
	assert.Equal(t, 1, env.up.verifyCount())

	// a refreshed callback page is answered from the stored receipt
	code, body = env.do(t, fiber.MethodGet, "/api/payments/callback?status=successful&tx_ref=FLW-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "success", body.data()["status"])
	assert.Equal(t, 1, env.up.verifyCount())
}

func TestInitiateValidation(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, fiber.MethodPost, "/api/payments/initiate", map[string]any{
		"item_type": "ebook", "item_id": 1, "amount": "100", "gateway": "paystack",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Contains(t, body.Errors, "item_type")

	code, body = env.do(t, fiber.MethodPost, "/api/payments/initiate", map[string]any{
		"item_type": "course", "item_id": 1, "amount": "0",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Contains(t, body.Errors, "amount")
}

func TestGuardedRoutesNeedLogin(t *testing.T) {
	env := newEnv(t)
	anon, err := env.mgr.Create(context.Background())
	require.NoError(t, err)
	env.sessionID = anon.ID

	code, body := env.do(t, fiber.MethodPost, "/api/payments/initiate", map[string]any{
		"item_type": "course", "item_id": 1, "amount": "100", "gateway": "paystack",
	})
	assert.Equal(t, fiber.StatusUnauthorized, code)
	assert.Contains(t, body.Redirect, "/login?next=")

	// the callback still answers, with an outcome that sends the user to login
	code, body = env.do(t, fiber.MethodGet, "/api/payments/callback?reference=PS-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "/login", body.data()["redirect"])
	assert.Equal(t, 0, env.up.verifyCount())
}

func TestDiplomaReceiptAck(t *testing.T) {
	env := newEnv(t)
	env.up.verifyFn = func(string) upstream.VerifyResponse {
		return upstream.VerifyResponse{Status: "success", Raw: map[string]any{
			"status":  "success",
			"diploma": map[string]any{"id": 44, "title": "Data Science"},
		}}
	}

	code, _ := env.do(t, fiber.MethodPost, "/api/payments/initiate", map[string]any{
		"item_type": "diploma", "item_id": 44, "amount": "50000", "gateway": "paystack",
	})
	require.Equal(t, fiber.StatusOK, code)

	code, body := env.do(t, fiber.MethodGet, "/api/payments/callback?reference=PS-1&trxref=PS-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "receipt", body.data()["status"])
	assert.Nil(t, body.data()["redirect"])

	code, body = env.do(t, fiber.MethodPost, "/api/payments/receipt/ack", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "/student/diplomas/44", body.data()["redirect"])

	code, _ = env.do(t, fiber.MethodPost, "/api/payments/receipt/ack", nil)
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestActivationFee(t *testing.T) {
	env := newEnv(t)

	code, _ := env.do(t, fiber.MethodGet, "/api/payments/activation-fee?type=exam&exam_id=1", nil)
	assert.Equal(t, fiber.StatusNotFound, code)

	amount := decimal.NewFromInt(1500)
	env.up.fee = upstream.ActivationFee{Amount: &amount, Currency: "NGN"}
	code, body := env.do(t, fiber.MethodGet, "/api/payments/activation-fee?type=exam&exam_id=1&exam_title=JAMB", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Unlock Exam: JAMB", body.data()["title"])
	assert.Equal(t, "/student/cbt?exam_id=1", body.data()["return_to"])
}

func TestQuote(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, fiber.MethodPost, "/api/payments/quote", map[string]any{
		"item_type": "course", "amount": "20000",
	})
	require.Equal(t, fiber.StatusOK, code)
	display, ok := body.data()["display"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "₦20,000", display["total"])
	assert.Equal(t, "₦1,000", display["platform_fee"])
	assert.Equal(t, "₦19,000", display["creator_gets"])
}

func TestHistoryPagination(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, fiber.MethodGet, "/api/payments/history?page=2&page_size=10", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(5), body.Page["total_pages"])
	assert.Equal(t, true, body.Page["has_next"])
}
