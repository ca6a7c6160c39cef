package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edumarket_bff/internals/features/payments/dto"
	"edumarket_bff/internals/features/payments/model"
	sessmodel "edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/upstream"
)

func courseCheckout(gateway string) dto.InitiateRequest {
	return dto.InitiateRequest{
		ItemType: "course",
		ItemID:   12,
		Amount:   decimal.NewFromInt(15000),
		Gateway:  gateway,
	}
}

/* ===================== INITIATE ===================== */

func TestInitiateRedirectStoresBreadcrumbs(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{initiateRes: upstream.InitiateResponse{
		Reference:        "ref-1",
		AuthorizationURL: "https://checkout.paystack.com/abc",
	}}
	h := newHarness(t, api)

	res, err := h.svc.Initiate(ctx, h.sess, courseCheckout("paystack"))
	require.NoError(t, err)
	assert.Equal(t, dto.ActionRedirect, res.Action)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.URL)
	assert.Nil(t, res.Popup)

	// everything the callback needs is stored by the time the redirect is handed out
	crumbs := h.crumbs(t)
	assert.Equal(t, "ref-1", crumbs.Reference)
	assert.Equal(t, "course", crumbs.ItemType)
	assert.Equal(t, "12", crumbs.ItemID)
	assert.Equal(t, "paystack", crumbs.Method)
	assert.False(t, crumbs.IsScheduled)

	assert.Equal(t, upstream.GatewayPaystack, api.lastGateway)
	assert.Equal(t, "NGN", api.lastInitiate.Currency)
	assert.True(t, api.lastInitiate.Amount.Equal(decimal.NewFromInt(15000)))

	rec, err := h.intents.FindByReference(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, model.IntentInitiated, rec.PaymentIntentStatus)
	assert.Equal(t, int64(9), rec.PaymentIntentUserID)
	assert.Equal(t, h.sess.ID, rec.PaymentIntentSessionID)
}

func TestInitiateFlutterwaveLink(t *testing.T) {
	api := &fakePaymentsAPI{initiateRes: upstream.InitiateResponse{Reference: "FLW-1", Link: "https://checkout.flutterwave.com/v3/hosted/pay/x"}}
	h := newHarness(t, api)

	req := courseCheckout("flutterwave")
	req.IsScheduled = true
	res, err := h.svc.Initiate(context.Background(), h.sess, req)
	require.NoError(t, err)
	assert.Equal(t, dto.ActionRedirect, res.Action)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/x", res.URL)

	crumbs := h.crumbs(t)
	assert.Equal(t, "flutterwave", crumbs.Method)
	assert.True(t, crumbs.IsScheduled)
}

func TestInitiatePopupWithoutHostedURL(t *testing.T) {
	api := &fakePaymentsAPI{
		initiateRes: upstream.InitiateResponse{Reference: "ref-2"},
		me:          upstream.User{Email: "ada@example.com"},
	}
	h := newHarness(t, api)

	req := courseCheckout("paystack")
	req.Amount = decimal.RequireFromString("2500.50")
	res, err := h.svc.Initiate(context.Background(), h.sess, req)
	require.NoError(t, err)
	assert.Equal(t, dto.ActionPopup, res.Action)
	require.NotNil(t, res.Popup)
	assert.Equal(t, "pk_test_123", res.Popup.Key)
	assert.Equal(t, "ada@example.com", res.Popup.Email)
	assert.Equal(t, int64(250050), res.Popup.AmountSubunits)
	assert.Equal(t, "ref-2", res.Popup.Reference)
	assert.Equal(t, "ref-2", h.crumbs(t).Reference)
}

func TestInitiateWithoutCheckoutLinkFails(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{initiateRes: upstream.InitiateResponse{Reference: "FLW-2"}}
	h := newHarness(t, api)

	_, err := h.svc.Initiate(ctx, h.sess, courseCheckout("flutterwave"))
	assert.ErrorIs(t, err, ErrNoCheckoutLink)
	assert.True(t, h.crumbs(t).Empty())

	rec, err := h.intents.FindByReference(ctx, "FLW-2")
	require.NoError(t, err)
	assert.Equal(t, model.IntentFailed, rec.PaymentIntentStatus)
}

func TestInitiateUpstreamFailureWritesNothing(t *testing.T) {
	api := &fakePaymentsAPI{initiateErr: &upstream.Error{Kind: upstream.KindValidation, Status: 400, Message: "Course not found"}}
	h := newHarness(t, api)

	_, err := h.svc.Initiate(context.Background(), h.sess, courseCheckout("paystack"))
	assert.Equal(t, upstream.KindValidation, upstream.KindOf(err))
	assert.True(t, h.crumbs(t).Empty())
}

func TestInitiateAppliesPromo(t *testing.T) {
	api := &fakePaymentsAPI{
		initiateRes: upstream.InitiateResponse{Reference: "ref-3", AuthorizationURL: "https://checkout.paystack.com/p"},
		promo:       upstream.PromoResult{Valid: true, NewTotal: decimal.NewFromInt(13500), Discount: decimal.NewFromInt(1500)},
	}
	h := newHarness(t, api)

	req := courseCheckout("paystack")
	req.PromoCode = " SAVE10 "
	_, err := h.svc.Initiate(context.Background(), h.sess, req)
	require.NoError(t, err)
	assert.True(t, api.lastInitiate.Amount.Equal(decimal.NewFromInt(13500)))
	assert.Equal(t, "SAVE10", api.lastInitiate.PromoCode)

	api.promo = upstream.PromoResult{Valid: false}
	_, err = h.svc.Initiate(context.Background(), h.sess, req)
	var ue *upstream.Error
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Fields, "promo_code")
}

func TestInitiateValidation(t *testing.T) {
	h := newHarness(t, &fakePaymentsAPI{})

	req := courseCheckout("paystack")
	req.Amount = decimal.Zero
	_, err := h.svc.Initiate(context.Background(), h.sess, req)
	var ue *upstream.Error
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Fields, "amount")

	req = courseCheckout("paystack")
	req.ItemID = 0
	_, err = h.svc.Initiate(context.Background(), h.sess, req)
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Fields, "item_id")
}

/* ===================== CALLBACK ===================== */

func TestCallbackCancelledSkipsVerify(t *testing.T) {
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "XYZ", ItemType: "course", ItemID: "4", Method: "flutterwave"})

	out := h.svc.Callback(context.Background(), h.sess, dto.CallbackQuery{TxRef: "XYZ", Status: "cancelled"})
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Equal(t, "Payment was cancelled", out.Message)
	assert.Equal(t, "/student", out.Redirect)
	assert.Equal(t, int64(3000), out.RedirectAfterMs)
	assert.Equal(t, 0, api.verifyCount())
	assert.True(t, h.crumbs(t).Empty())
}

func TestCallbackWithoutReference(t *testing.T) {
	api := &fakePaymentsAPI{}
	h := newHarness(t, api)

	out := h.svc.Callback(context.Background(), h.sess, dto.CallbackQuery{})
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Equal(t, "No payment reference found", out.Message)
	assert.Equal(t, "/student", out.Redirect)
	assert.Equal(t, 0, api.verifyCount())
}

func TestCallbackFallsBackToBreadcrumbs(t *testing.T) {
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "ref-9", ItemType: "course", ItemID: "3", Method: "flutterwave", IsScheduled: true})

	out := h.svc.Callback(context.Background(), h.sess, dto.CallbackQuery{})
	assert.Equal(t, dto.OutcomeSuccess, out.Status)
	assert.Equal(t, "/student/schedule", out.Redirect)
	assert.Equal(t, int64(2000), out.RedirectAfterMs)
	assert.Equal(t, []string{"ref-9"}, api.verifiedRefs)
	assert.Equal(t, []upstream.Gateway{upstream.GatewayFlutterwave}, api.verifyGateways)
	assert.True(t, h.crumbs(t).Empty())
}

func TestCallbackActivationReturnsToExam(t *testing.T) {
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "act-1", ItemType: "activation", ItemID: "0", Method: "paystack", ReturnTo: "/student/cbt?exam_id=1"})

	out := h.svc.Callback(context.Background(), h.sess, dto.CallbackQuery{Reference: "act-1", Trxref: "act-1"})
	assert.Equal(t, "/student/cbt?exam_id=1", out.Redirect)
	assert.Equal(t, []upstream.Gateway{upstream.GatewayPaystack}, api.verifyGateways)
}

func TestResolveGateway(t *testing.T) {
	fw := sessmodel.Breadcrumbs{Method: "flutterwave"}
	assert.Equal(t, upstream.GatewayPaystack, resolveGateway("Paystack", true, fw))
	assert.Equal(t, upstream.GatewayFlutterwave, resolveGateway("", true, sessmodel.Breadcrumbs{}))
	assert.Equal(t, upstream.GatewayFlutterwave, resolveGateway("", false, fw))
	assert.Equal(t, upstream.GatewayPaystack, resolveGateway("bogus", false, sessmodel.Breadcrumbs{}))
}

/* ===================== VERIFY ===================== */

func TestDiplomaReceiptWaitsForAcknowledgment(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{verifyRes: success(map[string]any{"diploma": map[string]any{"id": 44, "title": "Data Science"}})}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "ref-d", ItemType: "diploma", ItemID: "44", Method: "paystack"})

	out := h.svc.Callback(ctx, h.sess, dto.CallbackQuery{Reference: "ref-d"})
	assert.Equal(t, dto.OutcomeReceipt, out.Status)
	assert.Empty(t, out.Redirect)
	assert.Zero(t, out.RedirectAfterMs)
	assert.Contains(t, out.Receipt, "diploma")

	// nothing is cleared until the user continues
	crumbs := h.crumbs(t)
	assert.Equal(t, "ref-d", crumbs.Reference)
	assert.True(t, crumbs.ReceiptPending)

	ack, err := h.svc.AckReceipt(ctx, h.sess)
	require.NoError(t, err)
	assert.Equal(t, "/student/diplomas/44", ack.Redirect)
	assert.True(t, h.crumbs(t).Empty())

	_, err = h.svc.AckReceipt(ctx, h.sess)
	assert.ErrorIs(t, err, ErrNoReceiptPending)
}

func TestAcknowledgedReceiptReloadKeepsBreadcrumbsCleared(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{verifyRes: success(map[string]any{"diploma": map[string]any{"id": 44}})}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "ref-d", ItemType: "diploma", ItemID: "44", Method: "paystack"})

	out := h.svc.Callback(ctx, h.sess, dto.CallbackQuery{Reference: "ref-d"})
	require.Equal(t, dto.OutcomeReceipt, out.Status)
	_, err := h.svc.AckReceipt(ctx, h.sess)
	require.NoError(t, err)

	rec, err := h.intents.FindByReference(ctx, "ref-d")
	require.NoError(t, err)
	assert.NotNil(t, rec.PaymentIntentAcknowledgedAt)

	again := h.svc.Callback(ctx, h.sess, dto.CallbackQuery{Reference: "ref-d"})
	assert.Equal(t, dto.OutcomeSuccess, again.Status)
	assert.Equal(t, "/student/diplomas/44", again.Redirect)
	assert.Contains(t, again.Receipt, "diploma")
	assert.True(t, h.crumbs(t).Empty())
	assert.Equal(t, 1, api.verifyCount())
}

func TestAckWithoutReceipt(t *testing.T) {
	h := newHarness(t, &fakePaymentsAPI{})
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "ref-x", Method: "paystack"})

	_, err := h.svc.AckReceipt(context.Background(), h.sess)
	assert.ErrorIs(t, err, ErrNoReceiptPending)
	assert.Equal(t, "ref-x", h.crumbs(t).Reference)
}

func TestVerifyIsIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{
		initiateRes: upstream.InitiateResponse{Reference: "ref-5", AuthorizationURL: "https://checkout.paystack.com/5"},
		verifyRes:   success(nil),
	}
	h := newHarness(t, api)
	_, err := h.svc.Initiate(ctx, h.sess, courseCheckout("paystack"))
	require.NoError(t, err)

	first := h.svc.VerifyReference(ctx, h.sess, "ref-5", "paystack")
	second := h.svc.VerifyReference(ctx, h.sess, "ref-5", "paystack")
	assert.Equal(t, dto.OutcomeSuccess, first.Status)
	assert.Equal(t, dto.OutcomeSuccess, second.Status)
	assert.Equal(t, 1, api.verifyCount())

	rec, err := h.intents.FindByReference(ctx, "ref-5")
	require.NoError(t, err)
	assert.Equal(t, model.IntentVerified, rec.PaymentIntentStatus)
	assert.NotNil(t, rec.PaymentIntentVerifiedAt)
}

func TestConcurrentVerifyCallsUpstreamOnce(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)

	var wg sync.WaitGroup
	outs := make([]dto.Outcome, 8)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = h.svc.VerifyReference(ctx, h.sess, "ref-c", "paystack")
		}(i)
	}
	wg.Wait()

	for _, o := range outs {
		assert.Equal(t, dto.OutcomeSuccess, o.Status)
	}
	assert.Equal(t, 1, api.verifyCount())
}

func TestStoredReceiptIsNotSharedAcrossUsers(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{verifyRes: success(map[string]any{
		"diploma":        map[string]any{"id": 3},
		"customer_email": "alice@example.com",
	})}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "ref-alice", ItemType: "diploma", ItemID: "3", Method: "paystack"})

	alice := h.svc.VerifyReference(ctx, h.sess, "ref-alice", "paystack")
	require.Equal(t, dto.OutcomeReceipt, alice.Status)

	api.setVerify(upstream.VerifyResponse{Status: "failed", Raw: map[string]any{"status": "failed"}})
	other := h.signIn(t, 77)

	out := h.svc.VerifyReference(ctx, other, "ref-alice", "paystack")
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Nil(t, out.Receipt)
	assert.Equal(t, 2, api.verifyCount())

	crumbs, err := h.mgr.ReadBreadcrumbs(ctx, other)
	require.NoError(t, err)
	assert.False(t, crumbs.ReceiptPending)

	// the owner's intent and breadcrumbs are untouched
	rec, err := h.intents.FindByReference(ctx, "ref-alice")
	require.NoError(t, err)
	assert.Equal(t, model.IntentVerified, rec.PaymentIntentStatus)
	assert.EqualValues(t, 9, rec.PaymentIntentUserID)
	assert.True(t, h.crumbs(t).ReceiptPending)

	// the owner still gets the stored receipt
	again := h.svc.VerifyReference(ctx, h.sess, "ref-alice", "paystack")
	assert.Equal(t, dto.OutcomeReceipt, again.Status)
	assert.Equal(t, "alice@example.com", again.Receipt["customer_email"])
	assert.Equal(t, 2, api.verifyCount())
}

func TestVerifyNonSuccessStatus(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{
		initiateRes: upstream.InitiateResponse{Reference: "ref-f", AuthorizationURL: "https://checkout.paystack.com/f"},
		verifyRes:   upstream.VerifyResponse{Status: "failed", Raw: map[string]any{"status": "failed"}},
	}
	h := newHarness(t, api)
	_, err := h.svc.Initiate(ctx, h.sess, courseCheckout("paystack"))
	require.NoError(t, err)

	out := h.svc.Callback(ctx, h.sess, dto.CallbackQuery{Reference: "ref-f"})
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Equal(t, "Payment verification failed. Please contact support.", out.Message)
	assert.Equal(t, "/student", out.Redirect)
	assert.True(t, h.crumbs(t).Empty())

	rec, err := h.intents.FindByReference(ctx, "ref-f")
	require.NoError(t, err)
	assert.Equal(t, model.IntentFailed, rec.PaymentIntentStatus)
}

func TestVerifyUpstreamError(t *testing.T) {
	api := &fakePaymentsAPI{verifyErr: &upstream.Error{Kind: upstream.KindNotFound, Status: 404, Message: "Transaction reference not found"}}
	h := newHarness(t, api)

	out := h.svc.VerifyReference(context.Background(), h.sess, "ref-404", "")
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Equal(t, "Transaction reference not found", out.Message)

	api.verifyErr = &upstream.Error{Kind: upstream.KindNetwork, Message: "connection refused", Err: errors.New("dial tcp")}
	out = h.svc.VerifyReference(context.Background(), h.sess, "ref-net", "")
	assert.Equal(t, "Payment verification failed", out.Message)
}

func TestVerifyWithExpiredSession(t *testing.T) {
	ctx := context.Background()
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)
	require.NoError(t, h.mgr.ClearTokens(ctx, h.sess))

	out := h.svc.Callback(ctx, h.sess, dto.CallbackQuery{Reference: "ref-e"})
	assert.Equal(t, dto.OutcomeError, out.Status)
	assert.Equal(t, "Session expired. Please log in again.", out.Message)
	assert.Equal(t, "/login", out.Redirect)
	assert.Equal(t, 0, api.verifyCount())
}

func TestStaleBreadcrumbsDoNotRouteAnotherPayment(t *testing.T) {
	api := &fakePaymentsAPI{verifyRes: success(nil)}
	h := newHarness(t, api)
	h.setCrumbs(t, sessmodel.Breadcrumbs{Reference: "other", ItemType: "course", ItemID: "8", Method: "flutterwave", IsScheduled: true})

	out := h.svc.VerifyReference(context.Background(), h.sess, "ref-new", "paystack")
	assert.Equal(t, "/student/courses", out.Redirect)
	assert.Equal(t, "other", h.crumbs(t).Reference)
}

/* ===================== QUOTE / ACTIVATION ===================== */

func TestQuoteWithPromo(t *testing.T) {
	api := &fakePaymentsAPI{
		split: upstream.SplitConfig{TutorShare: decimal.NewFromInt(90), InstitutionShare: decimal.NewFromInt(85)},
		promo: upstream.PromoResult{Valid: true, Discount: decimal.NewFromInt(1000), NewTotal: decimal.NewFromInt(9000)},
	}
	api.promo.Promo.Code = "TEN"
	h := newHarness(t, api)

	q, err := h.svc.Quote(context.Background(), h.sess, dto.QuoteRequest{ItemType: "course", Amount: decimal.NewFromInt(10000), PromoCode: "ten"})
	require.NoError(t, err)
	assert.Equal(t, "TEN", q.PromoCode)
	assert.Equal(t, "9000", q.Total.String())
	assert.Equal(t, "900", q.Breakdown.PlatformAmount.String())
	assert.Equal(t, "8100", q.Breakdown.CreatorAmount.String())
	assert.Equal(t, "₦10,000", q.Display.Subtotal)
	assert.Equal(t, "- ₦1,000", q.Display.Discount)
	assert.Equal(t, "₦9,000", q.Display.Total)
	assert.Equal(t, "₦8,100", q.Display.CreatorGets)
}

func TestQuoteDegradesGracefully(t *testing.T) {
	api := &fakePaymentsAPI{
		splitErr: &upstream.Error{Kind: upstream.KindAuthorization, Status: 403, Message: "Admins only"},
		promo:    upstream.PromoResult{Valid: false},
	}
	h := newHarness(t, api)

	q, err := h.svc.Quote(context.Background(), h.sess, dto.QuoteRequest{ItemType: "course", Amount: decimal.NewFromInt(2000), Currency: "usd", PromoCode: "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, "Promo code is not valid", q.PromoError)
	assert.Equal(t, "2000", q.Total.String())
	assert.Equal(t, "95", q.Breakdown.CreatorPercent.String())
	assert.Equal(t, "$", q.Symbol)
	assert.Equal(t, "$100", q.Display.PlatformFee)
}

func TestActivationFee(t *testing.T) {
	ctx := context.Background()
	amount := decimal.NewFromInt(1500)
	api := &fakePaymentsAPI{fee: upstream.ActivationFee{Amount: &amount, Currency: "ngn"}}
	h := newHarness(t, api)

	v, err := h.svc.ActivationFee(ctx, h.sess, dto.ActivationFeeQuery{Type: "exam", ExamID: 1, ExamTitle: "JAMB"})
	require.NoError(t, err)
	assert.Equal(t, "Unlock Exam: JAMB", v.Title)
	assert.Equal(t, int64(0), v.ItemID)
	assert.Equal(t, "NGN", v.Currency)
	assert.Equal(t, "/student/cbt?exam_id=1", v.ReturnTo)
	assert.Equal(t, map[string]any{"activation_type": "exam", "exam_id": int64(1)}, v.Meta)

	v, err = h.svc.ActivationFee(ctx, h.sess, dto.ActivationFeeQuery{Type: "interview", ExamID: 1, SubjectID: 2, SubjectName: "Maths", ReturnTo: "//evil.example"})
	require.NoError(t, err)
	assert.Equal(t, "Unlock: Maths", v.Title)
	assert.Equal(t, int64(2), v.ItemID)
	assert.Equal(t, "/student/cbt?exam_id=1&subject_id=2", v.ReturnTo)

	v, err = h.svc.ActivationFee(ctx, h.sess, dto.ActivationFeeQuery{ReturnTo: "/student/cbt?exam_id=7"})
	require.NoError(t, err)
	assert.Equal(t, "Account Activation", v.Title)
	assert.Equal(t, "/student/cbt?exam_id=7", v.ReturnTo)

	api.fee = upstream.ActivationFee{}
	_, err = h.svc.ActivationFee(ctx, h.sess, dto.ActivationFeeQuery{Type: "exam", ExamID: 1})
	assert.ErrorIs(t, err, ErrFeeNotConfigured)
}
