package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"edumarket_bff/internals/features/payments/repository"
	sessmodel "edumarket_bff/internals/features/session/model"
	sessservice "edumarket_bff/internals/features/session/service"
	"edumarket_bff/internals/features/session/store"
	"edumarket_bff/internals/upstream"
)

type fakePaymentsAPI struct {
	mu sync.Mutex

	initiateRes  upstream.InitiateResponse
	initiateErr  error
	lastInitiate upstream.InitiateRequest
	lastGateway  upstream.Gateway

	verifyRes      upstream.VerifyResponse
	verifyErr      error
	verifyCalls    int
	verifiedRefs   []string
	verifyGateways []upstream.Gateway

	split    upstream.SplitConfig
	splitErr error
	promo    upstream.PromoResult
	promoErr error
	fee      upstream.ActivationFee
	me       upstream.User
}

func (f *fakePaymentsAPI) InitiatePayment(_ context.Context, _ string, gw upstream.Gateway, req upstream.InitiateRequest) (upstream.InitiateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastInitiate, f.lastGateway = req, gw
	return f.initiateRes, f.initiateErr
}

func (f *fakePaymentsAPI) VerifyPayment(_ context.Context, _ string, gw upstream.Gateway, ref string) (upstream.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.verifiedRefs = append(f.verifiedRefs, ref)
	f.verifyGateways = append(f.verifyGateways, gw)
	return f.verifyRes, f.verifyErr
}

func (f *fakePaymentsAPI) SplitConfig(context.Context, string) (upstream.SplitConfig, error) {
	return f.split, f.splitErr
}

func (f *fakePaymentsAPI) ApplyPromo(context.Context, string, upstream.PromoRequest, map[string]any) (upstream.PromoResult, error) {
	return f.promo, f.promoErr
}

func (f *fakePaymentsAPI) ActivationFee(context.Context, string, string, int64, int64) (upstream.ActivationFee, error) {
	return f.fee, nil
}

func (f *fakePaymentsAPI) PaymentHistory(context.Context, string, int, int) (upstream.Page[upstream.PaymentRecord], error) {
	return upstream.Page[upstream.PaymentRecord]{Items: []upstream.PaymentRecord{{"reference": "ref-1"}}, Count: 1}, nil
}

func (f *fakePaymentsAPI) Me(context.Context, string) (upstream.User, error) {
	return f.me, nil
}

func (f *fakePaymentsAPI) verifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

type harness struct {
	api     *fakePaymentsAPI
	mgr     *sessservice.Manager
	intents *repository.MemoryIntentRepository
	svc     *PaymentService
	sess    *sessmodel.Session
}

func newHarness(t *testing.T, api *fakePaymentsAPI) *harness {
	t.Helper()
	mgr := sessservice.NewManager(store.NewMemoryStore(time.Hour, time.Hour), nil, time.Minute)
	intents := repository.NewMemoryIntentRepository()
	svc := NewPaymentService(api, mgr, intents, nil, Config{
		PaystackKey:  "pk_test_123",
		SuccessDelay: 2 * time.Second,
		FailureDelay: 3 * time.Second,
	})

	h := &harness{api: api, mgr: mgr, intents: intents, svc: svc}
	h.sess = h.signIn(t, 9)
	return h
}

// signIn opens another session signed in as userID.
func (h *harness) signIn(t *testing.T, userID int64) *sessmodel.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := h.mgr.Create(ctx)
	require.NoError(t, err)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    "student",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, h.mgr.SaveTokens(ctx, sess, upstream.TokenPair{Access: signed, Refresh: "r"}))
	return sess
}

func (f *fakePaymentsAPI) setVerify(res upstream.VerifyResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyRes = res
}

func (h *harness) crumbs(t *testing.T) sessmodel.Breadcrumbs {
	t.Helper()
	b, err := h.mgr.ReadBreadcrumbs(context.Background(), h.sess)
	require.NoError(t, err)
	return b
}

func (h *harness) setCrumbs(t *testing.T, b sessmodel.Breadcrumbs) {
	t.Helper()
	require.NoError(t, h.mgr.WriteBreadcrumbs(context.Background(), h.sess, b))
}

func success(extra map[string]any) upstream.VerifyResponse {
	raw := map[string]any{"status": "success", "reference": "x"}
	for k, v := range extra {
		raw[k] = v
	}
	return upstream.VerifyResponse{Status: "success", Raw: raw}
}
