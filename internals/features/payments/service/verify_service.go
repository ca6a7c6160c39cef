package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"edumarket_bff/internals/constants"
	"edumarket_bff/internals/features/payments/dto"
	"edumarket_bff/internals/features/payments/model"
	"edumarket_bff/internals/features/payments/repository"
	sessmodel "edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/upstream"
)

type verification struct {
	resp   upstream.VerifyResponse
	cached bool
	// set when the diploma receipt of this reference was already acknowledged
	ackedTo string
}

// Callback resumes a checkout after the gateway sent the user back.
func (s *PaymentService) Callback(ctx context.Context, sess *sessmodel.Session, q dto.CallbackQuery) dto.Outcome {
	crumbs := s.readCrumbs(ctx, sess)

	ref := firstNonEmpty(q.Reference, q.Trxref, q.TxRef)
	if ref == "" {
		ref = crumbs.Reference
	}
	gw := resolveGateway(q.Method, q.TxRef != "", crumbs)

	if strings.EqualFold(strings.TrimSpace(q.Status), "cancelled") {
		s.closeFlow(ctx, sess, crumbs, ref, model.IntentCancelled, msgCancelled)
		s.metrics.ObserveVerification(gw.String(), "cancelled")
		return s.failure(ref, gw, msgCancelled, "/student")
	}
	if ref == "" {
		s.closeFlow(ctx, sess, crumbs, "", model.IntentFailed, msgNoReference)
		return s.failure("", gw, msgNoReference, "/student")
	}
	return s.verify(ctx, sess, gw, ref, crumbs)
}

// VerifyReference verifies in place, for the popup checkout that never left the page.
func (s *PaymentService) VerifyReference(ctx context.Context, sess *sessmodel.Session, reference, method string) dto.Outcome {
	crumbs := s.readCrumbs(ctx, sess)
	return s.verify(ctx, sess, resolveGateway(method, false, crumbs), reference, crumbs)
}

// AckReceipt is the "Continue" on a diploma receipt: it clears the
// breadcrumbs and only then hands out the navigation.
func (s *PaymentService) AckReceipt(ctx context.Context, sess *sessmodel.Session) (dto.Outcome, error) {
	peek, err := s.sessions.ReadBreadcrumbs(ctx, sess)
	if err != nil {
		return dto.Outcome{}, err
	}
	if !peek.ReceiptPending {
		return dto.Outcome{}, ErrNoReceiptPending
	}
	// a concurrent ack may have taken them between the read and here
	crumbs, err := s.sessions.TakeBreadcrumbs(ctx, sess)
	if err != nil {
		return dto.Outcome{}, err
	}
	if !crumbs.ReceiptPending {
		return dto.Outcome{}, ErrNoReceiptPending
	}
	if err := s.intents.MarkAcknowledged(ctx, crumbs.Reference, s.now()); err != nil {
		logger.WithRequest("", sess.ID).WithError(err).WithField("reference", crumbs.Reference).Warn("failed to mark receipt acknowledged")
	}
	return dto.Outcome{
		Status:    dto.OutcomeSuccess,
		Message:   msgAcknowledged,
		Reference: crumbs.Reference,
		Gateway:   crumbs.Method,
		ItemType:  crumbs.ItemType,
		Redirect:  receiptDestination(crumbs),
	}, nil
}

func (s *PaymentService) verify(ctx context.Context, sess *sessmodel.Session, gw upstream.Gateway, ref string, crumbs sessmodel.Breadcrumbs) dto.Outcome {
	log := logger.WithRequest("", sess.ID).WithField("reference", ref).WithField("gateway", gw.String())

	token, err := s.sessions.EnsureFresh(ctx, sess)
	if err != nil {
		s.metrics.ObserveVerification(gw.String(), "error")
		s.closeFlow(ctx, sess, crumbs, ref, model.IntentFailed, err.Error())
		if upstream.KindOf(err) == upstream.KindAuthentication {
			return s.failure(ref, gw, msgSessionExpired, "/login")
		}
		return s.failure(ref, gw, msgVerifyError, "/student")
	}

	v, err, _ := s.verifies.Do(ownerKey(sess)+"|"+ref, func() (any, error) {
		return s.verifyOnce(ctx, sess, token, gw, ref, crumbs)
	})
	if err != nil {
		log.WithError(err).Warn("payment verification failed")
		s.metrics.ObserveVerification(gw.String(), "error")
		s.closeFlow(ctx, sess, crumbs, ref, model.IntentFailed, err.Error())
		switch upstream.KindOf(err) {
		case upstream.KindAuthentication:
			return s.failure(ref, gw, msgSessionExpired, "/login")
		case upstream.KindValidation, upstream.KindNotFound, upstream.KindDomain:
			return s.failure(ref, gw, upstream.MessageOf(err, msgVerifyError), "/student")
		}
		return s.failure(ref, gw, msgVerifyError, "/student")
	}
	res := v.(verification)

	if !res.resp.Succeeded() {
		log.WithField("status", res.resp.Status).Info("payment not successful")
		s.metrics.ObserveVerification(gw.String(), "failed")
		s.closeFlow(ctx, sess, crumbs, ref, model.IntentFailed, "verify status "+res.resp.Status)
		return s.failure(ref, gw, msgVerifyFailed, "/student")
	}

	outcome := "success"
	if res.cached {
		outcome = "cached"
	}
	s.metrics.ObserveVerification(gw.String(), outcome)

	if res.ackedTo != "" {
		// receipt already confirmed; a reload must not bring the breadcrumbs back
		return dto.Outcome{
			Status:          dto.OutcomeSuccess,
			Message:         msgAcknowledged,
			Reference:       ref,
			Gateway:         gw.String(),
			ItemType:        constants.ItemDiploma,
			Redirect:        res.ackedTo,
			RedirectAfterMs: s.cfg.SuccessDelay.Milliseconds(),
			Receipt:         res.resp.Raw,
		}
	}

	own := crumbs.Reference == ref
	if !own {
		// breadcrumbs of another checkout must not route this one
		crumbs = sessmodel.Breadcrumbs{}
	}

	if res.resp.HasDiploma() {
		pending := crumbs
		pending.Reference, pending.Method, pending.ReceiptPending = ref, gw.String(), true
		if pending.ItemType == "" {
			pending.ItemType = constants.ItemDiploma
		}
		if err := s.sessions.WriteBreadcrumbs(ctx, sess, pending); err != nil {
			log.WithError(err).Warn("failed to mark receipt pending")
		}
		return dto.Outcome{
			Status:    dto.OutcomeReceipt,
			Message:   msgReceipt,
			Reference: ref,
			Gateway:   gw.String(),
			ItemType:  pending.ItemType,
			Receipt:   res.resp.Raw,
		}
	}

	if own {
		if err := s.sessions.ClearBreadcrumbs(ctx, sess); err != nil {
			log.WithError(err).Warn("failed to clear payment breadcrumbs")
		}
	}
	return dto.Outcome{
		Status:          dto.OutcomeSuccess,
		Message:         msgVerified,
		Reference:       ref,
		Gateway:         gw.String(),
		ItemType:        crumbs.ItemType,
		Redirect:        successDestination(crumbs),
		RedirectAfterMs: s.cfg.SuccessDelay.Milliseconds(),
		Receipt:         res.resp.Raw,
	}
}

// verifyOnce answers a reference the caller already verified from its stored
// receipt. Intents of another user always go to upstream.
func (s *PaymentService) verifyOnce(ctx context.Context, sess *sessmodel.Session, token string, gw upstream.Gateway, ref string, crumbs sessmodel.Breadcrumbs) (verification, error) {
	rec, err := s.intents.FindByReference(ctx, ref)
	foreign := false
	switch {
	case err == nil && !ownedBy(rec, sess):
		logger.WithRequest("", sess.ID).WithField("reference", ref).Warn("payment intent belongs to another user")
		foreign = true
	case err == nil && rec.PaymentIntentStatus == model.IntentVerified && len(rec.PaymentIntentReceipt) > 0:
		raw := map[string]any{}
		if uerr := sonic.Unmarshal(rec.PaymentIntentReceipt, &raw); uerr == nil {
			v := verification{resp: upstream.VerifyResponse{Status: "success", Raw: raw}, cached: true}
			if rec.PaymentIntentAcknowledgedAt != nil {
				v.ackedTo = receiptDestination(sessmodel.Breadcrumbs{
					ItemType: rec.PaymentIntentItemType,
					ItemID:   strconv.FormatInt(rec.PaymentIntentItemID, 10),
				})
			}
			return v, nil
		}
	case err != nil && !errors.Is(err, repository.ErrIntentNotFound):
		logger.WithRequest("", sess.ID).WithError(err).Warn("payment intent lookup failed")
	}

	resp, err := s.api.VerifyPayment(ctx, token, gw, ref)
	if err != nil {
		return verification{}, err
	}
	if resp.Succeeded() && !foreign {
		s.recordVerified(ctx, sess, gw, ref, crumbs, rec, resp)
	}
	return verification{resp: resp}, nil
}

func (s *PaymentService) recordVerified(ctx context.Context, sess *sessmodel.Session, gw upstream.Gateway, ref string, crumbs sessmodel.Breadcrumbs, rec *model.PaymentIntentModel, resp upstream.VerifyResponse) {
	log := logger.WithRequest("", sess.ID).WithField("reference", ref)
	raw, err := sonic.Marshal(resp.Raw)
	if err != nil {
		log.WithError(err).Warn("failed to encode payment receipt")
		return
	}
	now := s.now()
	if rec != nil {
		if err := s.intents.MarkVerified(ctx, ref, datatypes.JSON(raw), now); err != nil {
			log.WithError(err).Warn("failed to mark payment intent verified")
		}
		return
	}

	// checkout opened elsewhere (another instance, or before a restart)
	itemID, _ := strconv.ParseInt(crumbs.ItemID, 10, 64)
	if crumbs.Reference != ref {
		itemID = 0
		crumbs.ItemType = ""
	}
	err = s.intents.Create(ctx, &model.PaymentIntentModel{
		PaymentIntentReference:  ref,
		PaymentIntentSessionID:  sess.ID,
		PaymentIntentUserID:     sess.Tokens.UserID,
		PaymentIntentGateway:    gw.String(),
		PaymentIntentItemType:   crumbs.ItemType,
		PaymentIntentItemID:     itemID,
		PaymentIntentAmount:     decimal.Zero,
		PaymentIntentStatus:     model.IntentVerified,
		PaymentIntentReceipt:    datatypes.JSON(raw),
		PaymentIntentVerifiedAt: &now,
	})
	if err != nil {
		log.WithError(err).Warn("failed to record verified payment")
	}
}

/* ===================== HELPERS ===================== */

func (s *PaymentService) readCrumbs(ctx context.Context, sess *sessmodel.Session) sessmodel.Breadcrumbs {
	b, err := s.sessions.ReadBreadcrumbs(ctx, sess)
	if err != nil {
		logger.WithRequest("", sess.ID).WithError(err).Warn("failed to read payment breadcrumbs")
		return sessmodel.Breadcrumbs{}
	}
	return b
}

// ownedBy reports whether the intent was opened by the session's user, or by
// the session itself when the user id is unknown.
func ownedBy(rec *model.PaymentIntentModel, sess *sessmodel.Session) bool {
	if rec.PaymentIntentUserID != 0 {
		return rec.PaymentIntentUserID == sess.Tokens.UserID
	}
	return rec.PaymentIntentSessionID == sess.ID
}

func ownerKey(sess *sessmodel.Session) string {
	if sess.Tokens.UserID != 0 {
		return strconv.FormatInt(sess.Tokens.UserID, 10)
	}
	return "s:" + sess.ID
}

// closeFlow ends a failed checkout. Breadcrumbs of another reference and
// intents of another user are left alone.
func (s *PaymentService) closeFlow(ctx context.Context, sess *sessmodel.Session, crumbs sessmodel.Breadcrumbs, ref string, status model.IntentStatus, reason string) {
	log := logger.WithRequest("", sess.ID).WithField("reference", ref)
	if crumbs.Reference == "" || crumbs.Reference == ref {
		if err := s.sessions.ClearBreadcrumbs(ctx, sess); err != nil {
			log.WithError(err).Warn("failed to clear payment breadcrumbs")
		}
	}
	if ref == "" {
		return
	}
	if rec, err := s.intents.FindByReference(ctx, ref); err == nil && !ownedBy(rec, sess) {
		return
	}
	if err := s.intents.MarkClosed(ctx, ref, status, reason); err != nil {
		log.WithError(err).Warn("failed to close payment intent")
	}
}

func (s *PaymentService) failure(ref string, gw upstream.Gateway, msg, redirect string) dto.Outcome {
	return dto.Outcome{
		Status:          dto.OutcomeError,
		Message:         msg,
		Reference:       ref,
		Gateway:         gw.String(),
		Redirect:        redirect,
		RedirectAfterMs: s.cfg.FailureDelay.Milliseconds(),
	}
}

// resolveGateway picks the verify endpoint: explicit method, then a
// Flutterwave tx_ref, then the gateway stored at initiation.
func resolveGateway(method string, hasTxRef bool, crumbs sessmodel.Breadcrumbs) upstream.Gateway {
	if gw := upstream.Gateway(strings.ToLower(strings.TrimSpace(method))); gw.Valid() {
		return gw
	}
	if hasTxRef {
		return upstream.GatewayFlutterwave
	}
	if gw := upstream.Gateway(crumbs.Method); gw.Valid() {
		return gw
	}
	return upstream.GatewayPaystack
}

func successDestination(b sessmodel.Breadcrumbs) string {
	switch {
	case b.IsScheduled:
		return "/student/schedule"
	case b.ReturnTo != "":
		return b.ReturnTo
	}
	return "/student/courses"
}

func receiptDestination(b sessmodel.Breadcrumbs) string {
	if b.ItemType == constants.ItemDiploma && b.ItemID != "" && b.ItemID != "0" {
		return "/student/diplomas/" + b.ItemID
	}
	return successDestination(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
