package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"edumarket_bff/internals/constants"
	"edumarket_bff/internals/features/payments/dto"
	"edumarket_bff/internals/features/payments/model"
	"edumarket_bff/internals/features/payments/repository"
	sessmodel "edumarket_bff/internals/features/session/model"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
	"edumarket_bff/internals/upstream"
)

type PaymentService struct {
	api      API
	sessions Sessions
	intents  repository.IntentRepository
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time

	// verifications in flight, keyed by reference
	verifies singleflight.Group
}

func NewPaymentService(api API, sessions Sessions, intents repository.IntentRepository, m *metrics.Metrics, cfg Config) *PaymentService {
	return &PaymentService{
		api:      api,
		sessions: sessions,
		intents:  intents,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

func validationError(field, msg string) error {
	return &upstream.Error{
		Kind:    upstream.KindValidation,
		Message: "Validation failed",
		Fields:  map[string][]string{field: {msg}},
	}
}

/* ===================== QUOTE ===================== */

// Quote prices an item for the checkout summary. A promo or split-config
// failure degrades the quote; it never fails it.
func (s *PaymentService) Quote(ctx context.Context, sess *sessmodel.Session, req dto.QuoteRequest) (dto.QuoteView, error) {
	if !req.Amount.IsPositive() {
		return dto.QuoteView{}, validationError("amount", "must be greater than 0")
	}
	token, err := s.sessions.EnsureFresh(ctx, sess)
	if err != nil {
		return dto.QuoteView{}, err
	}

	currency := normalizeCurrency(req.Currency)
	view := dto.QuoteView{
		ItemType: req.ItemType,
		Currency: currency,
		Symbol:   CurrencySymbol(currency),
		Subtotal: req.Amount,
		Discount: decimal.Zero,
		Total:    req.Amount,
	}

	if code := strings.TrimSpace(req.PromoCode); code != "" {
		res, err := s.api.ApplyPromo(ctx, token, upstream.PromoRequest{
			Code:        code,
			TotalAmount: req.Amount,
			PaymentType: req.ItemType,
		}, req.Meta)
		switch {
		case upstream.KindOf(err) == upstream.KindAuthentication:
			return dto.QuoteView{}, err
		case err != nil:
			view.PromoError = upstream.MessageOf(err, "Failed to apply promo")
		case !res.Valid:
			view.PromoError = "Promo code is not valid"
		default:
			view.Total, view.Discount = res.NewTotal, res.Discount
			view.PromoCode = res.Promo.Code
			if view.PromoCode == "" {
				view.PromoCode = code
			}
		}
	}

	split, err := s.api.SplitConfig(ctx, token)
	if err != nil {
		if upstream.KindOf(err) == upstream.KindAuthentication {
			return dto.QuoteView{}, err
		}
		logger.WithRequest("", sess.ID).WithError(err).Warn("split config unavailable, using defaults")
		split = DefaultSplit
	}
	view.Breakdown = Split(req.ItemType, view.Total, split)
	view.Display = quoteDisplay(view)
	return view, nil
}

/* ===================== ACTIVATION ===================== */

// ActivationFee prepares the checkout of an exam or subject unlock.
func (s *PaymentService) ActivationFee(ctx context.Context, sess *sessmodel.Session, q dto.ActivationFeeQuery) (dto.ActivationFeeView, error) {
	typ := q.Type
	if typ == "" {
		typ = "exam"
	}
	token, err := s.sessions.EnsureFresh(ctx, sess)
	if err != nil {
		return dto.ActivationFeeView{}, err
	}
	fee, err := s.api.ActivationFee(ctx, token, typ, q.ExamID, q.SubjectID)
	if err != nil {
		return dto.ActivationFeeView{}, err
	}
	if fee.Amount == nil {
		return dto.ActivationFeeView{}, ErrFeeNotConfigured
	}

	meta := map[string]any{"activation_type": typ}
	if q.ExamID > 0 {
		meta["exam_id"] = q.ExamID
	}
	if q.SubjectID > 0 {
		meta["subject_id"] = q.SubjectID
	}
	returnTo := helper.SafePath(q.ReturnTo)
	if returnTo == "" {
		returnTo = activationReturn(q.ExamID, q.SubjectID)
	}

	// a subject unlock pays for the subject; an exam unlock sends 0 and the exam in meta
	return dto.ActivationFeeView{
		Title:    activationTitle(typ, q.ExamTitle, q.SubjectName),
		ItemType: constants.ItemActivation,
		ItemID:   q.SubjectID,
		Amount:   *fee.Amount,
		Currency: normalizeCurrency(fee.Currency),
		Meta:     meta,
		ReturnTo: returnTo,
	}, nil
}

func activationTitle(typ, examTitle, subjectName string) string {
	switch {
	case typ == "interview" && subjectName != "":
		return "Unlock: " + subjectName
	case typ == "exam" && examTitle != "":
		return "Unlock Exam: " + examTitle
	}
	return "Account Activation"
}

func activationReturn(examID, subjectID int64) string {
	q := url.Values{}
	if examID > 0 {
		q.Set("exam_id", strconv.FormatInt(examID, 10))
	}
	if subjectID > 0 {
		q.Set("subject_id", strconv.FormatInt(subjectID, 10))
	}
	if len(q) == 0 {
		return "/student/cbt"
	}
	return "/student/cbt?" + q.Encode()
}

/* ===================== INITIATE ===================== */

// Initiate opens a gateway checkout. The breadcrumbs are stored before the
// redirect directive is returned, since the redirect discards everything else.
func (s *PaymentService) Initiate(ctx context.Context, sess *sessmodel.Session, req dto.InitiateRequest) (dto.InitiateResponse, error) {
	if !req.Amount.IsPositive() {
		return dto.InitiateResponse{}, validationError("amount", "must be greater than 0")
	}
	if req.ItemType != constants.ItemActivation && req.ItemID <= 0 {
		return dto.InitiateResponse{}, validationError("item_id", "is required")
	}
	token, err := s.sessions.EnsureFresh(ctx, sess)
	if err != nil {
		return dto.InitiateResponse{}, err
	}

	gw := upstream.Gateway(req.Gateway)
	currency := normalizeCurrency(req.Currency)
	amount := req.Amount
	promo := ""
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		res, err := s.api.ApplyPromo(ctx, token, upstream.PromoRequest{Code: code, TotalAmount: amount, PaymentType: req.ItemType}, req.Meta)
		if err != nil {
			return dto.InitiateResponse{}, err
		}
		if !res.Valid {
			return dto.InitiateResponse{}, validationError("promo_code", "Promo code is not valid")
		}
		amount = res.NewTotal
		promo = res.Promo.Code
		if promo == "" {
			promo = code
		}
	}

	res, err := s.api.InitiatePayment(ctx, token, gw, upstream.InitiateRequest{
		ItemType:  req.ItemType,
		ItemID:    req.ItemID,
		Amount:    amount,
		Currency:  currency,
		PromoCode: promo,
		Meta:      req.Meta,
	})
	if err != nil {
		s.metrics.ObserveInitiation(gw.String(), "error")
		return dto.InitiateResponse{}, err
	}

	crumbs := sessmodel.Breadcrumbs{
		Reference:   res.Reference,
		ItemType:    req.ItemType,
		ItemID:      strconv.FormatInt(req.ItemID, 10),
		Method:      gw.String(),
		IsScheduled: req.IsScheduled,
		ReturnTo:    helper.SafePath(req.ReturnTo),
	}
	if err := s.sessions.WriteBreadcrumbs(ctx, sess, crumbs); err != nil {
		s.metrics.ObserveInitiation(gw.String(), "error")
		return dto.InitiateResponse{}, fmt.Errorf("store payment breadcrumbs: %w", err)
	}
	s.recordIntent(ctx, sess, req, gw, amount, currency, promo, res.Reference)

	out := dto.InitiateResponse{Reference: res.Reference, Gateway: gw.String()}
	if u := res.HostedURL(); u != "" {
		out.Action, out.URL = dto.ActionRedirect, u
		s.metrics.ObserveInitiation(gw.String(), dto.ActionRedirect)
		return out, nil
	}

	// no hosted page: only Paystack can fall back to its inline popup
	if gw != upstream.GatewayPaystack || s.cfg.PaystackKey == "" {
		s.abandon(ctx, sess, res.Reference, ErrNoCheckoutLink.Error())
		s.metrics.ObserveInitiation(gw.String(), "error")
		return dto.InitiateResponse{}, ErrNoCheckoutLink
	}
	me, err := s.api.Me(ctx, token)
	if err != nil {
		s.abandon(ctx, sess, res.Reference, "profile lookup failed")
		s.metrics.ObserveInitiation(gw.String(), "error")
		return dto.InitiateResponse{}, err
	}
	out.Action = dto.ActionPopup
	out.Popup = &dto.PopupConfig{
		Key:            s.cfg.PaystackKey,
		Email:          me.Email,
		AmountSubunits: amount.Mul(hundred).Round(0).IntPart(),
		Currency:       currency,
		Reference:      res.Reference,
	}
	s.metrics.ObserveInitiation(gw.String(), dto.ActionPopup)
	return out, nil
}

func (s *PaymentService) recordIntent(ctx context.Context, sess *sessmodel.Session, req dto.InitiateRequest, gw upstream.Gateway, amount decimal.Decimal, currency, promo, reference string) {
	rec := &model.PaymentIntentModel{
		PaymentIntentReference: reference,
		PaymentIntentSessionID: sess.ID,
		PaymentIntentUserID:    sess.Tokens.UserID,
		PaymentIntentGateway:   gw.String(),
		PaymentIntentItemType:  req.ItemType,
		PaymentIntentItemID:    req.ItemID,
		PaymentIntentAmount:    amount,
		PaymentIntentCurrency:  currency,
		PaymentIntentStatus:    model.IntentInitiated,
	}
	if promo != "" {
		rec.PaymentIntentPromo = &promo
	}
	if len(req.Meta) > 0 {
		if raw, err := sonic.Marshal(req.Meta); err == nil {
			rec.PaymentIntentMeta = datatypes.JSON(raw)
		}
	}
	if err := s.intents.Create(ctx, rec); err != nil {
		logger.WithRequest("", sess.ID).WithError(err).WithField("reference", reference).Warn("failed to record payment intent")
	}
}

// abandon undoes the breadcrumbs of a checkout that never opened.
func (s *PaymentService) abandon(ctx context.Context, sess *sessmodel.Session, reference, reason string) {
	if err := s.sessions.ClearBreadcrumbs(ctx, sess); err != nil {
		logger.WithRequest("", sess.ID).WithError(err).Warn("failed to clear payment breadcrumbs")
	}
	if err := s.intents.MarkClosed(ctx, reference, model.IntentFailed, reason); err != nil {
		logger.WithRequest("", sess.ID).WithError(err).Warn("failed to close payment intent")
	}
}

/* ===================== HISTORY ===================== */

func (s *PaymentService) History(ctx context.Context, sess *sessmodel.Session, page, pageSize int) (upstream.Page[upstream.PaymentRecord], error) {
	token, err := s.sessions.EnsureFresh(ctx, sess)
	if err != nil {
		return upstream.Page[upstream.PaymentRecord]{}, err
	}
	return s.api.PaymentHistory(ctx, token, page, pageSize)
}
