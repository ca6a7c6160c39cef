package controller

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/payments/dto"
	"edumarket_bff/internals/features/payments/service"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/middlewares/auth"
)

type PaymentController struct {
	svc      *service.PaymentService
	validate *validator.Validate
}

func NewPaymentController(svc *service.PaymentService) *PaymentController {
	return &PaymentController{svc: svc, validate: helper.NewValidator()}
}

// POST /api/payments/quote
func (pc *PaymentController) Quote(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := pc.validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	view, err := pc.svc.Quote(c.UserContext(), auth.CurrentSession(c), req)
	if err != nil {
		return helper.FromUpstreamError(c, err)
	}
	return helper.JsonOK(c, "Quote ready", view)
}

// GET /api/payments/activation-fee?type=&exam_id=&subject_id=&exam_title=&subject_name=&return_to=
func (pc *PaymentController) ActivationFee(c *fiber.Ctx) error {
	var q dto.ActivationFeeQuery
	if err := c.QueryParser(&q); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid query")
	}
	if err := pc.validate.Struct(q); err != nil {
		return helper.ValidationError(c, err)
	}
	view, err := pc.svc.ActivationFee(c.UserContext(), auth.CurrentSession(c), q)
	if err != nil {
		return paymentError(c, err)
	}
	return helper.JsonOK(c, "Activation fee loaded", view)
}

// POST /api/payments/initiate
func (pc *PaymentController) Initiate(c *fiber.Ctx) error {
	var req dto.InitiateRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Gateway = strings.ToLower(strings.TrimSpace(req.Gateway))
	if req.Gateway == "" {
		req.Gateway = "paystack"
	}
	if err := pc.validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	sess := auth.CurrentSession(c)
	res, err := pc.svc.Initiate(c.UserContext(), sess, req)
	if err != nil {
		logger.WithRequest(requestID(c), sess.ID).WithError(err).Warn("payment initiation failed")
		return paymentError(c, err)
	}
	return helper.JsonOK(c, "Payment initiated", res)
}

// POST /api/payments/verify/:reference?method=
func (pc *PaymentController) Verify(c *fiber.Ctx) error {
	ref := strings.TrimSpace(c.Params("reference"))
	if ref == "" {
		return helper.JsonError(c, fiber.StatusBadRequest, "Payment reference is required")
	}
	out := pc.svc.VerifyReference(c.UserContext(), auth.CurrentSession(c), ref, c.Query("method"))
	return helper.JsonOK(c, out.Message, out)
}

// GET /api/payments/callback?reference=|trxref=|tx_ref=&status=&method=
//
// Always 200: a failed or cancelled payment is a terminal state the client
// renders, not a request error.
func (pc *PaymentController) Callback(c *fiber.Ctx) error {
	var q dto.CallbackQuery
	if err := c.QueryParser(&q); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid query")
	}
	out := pc.svc.Callback(c.UserContext(), auth.CurrentSession(c), q)
	return helper.JsonOK(c, out.Message, out)
}

// POST /api/payments/receipt/ack
func (pc *PaymentController) AckReceipt(c *fiber.Ctx) error {
	out, err := pc.svc.AckReceipt(c.UserContext(), auth.CurrentSession(c))
	if err != nil {
		return paymentError(c, err)
	}
	return helper.JsonOK(c, out.Message, out)
}

// GET /api/payments/history?page=&page_size=
func (pc *PaymentController) History(c *fiber.Ctx) error {
	page := helper.ResolvePage(c)
	size, _ := strconv.Atoi(c.Query("page_size", "20"))
	if size <= 0 || size > 100 {
		size = 20
	}
	list, err := pc.svc.History(c.UserContext(), auth.CurrentSession(c), page, size)
	if err != nil {
		return helper.FromUpstreamError(c, err)
	}
	var pg helper.Pagination
	if list.Count > 0 {
		pg = helper.BuildPaginationFromPage(int64(list.Count), page, size, len(list.Items))
	} else {
		total := list.TotalPages
		if total == 0 && list.HasNext {
			total = page + 1
		} else if total == 0 {
			total = page
		}
		pg = helper.BuildPaginationFromPages(page, total, len(list.Items))
	}
	return helper.JsonList(c, "Payments loaded", list.Items, &pg)
}

func paymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNoCheckoutLink):
		return helper.JsonError(c, fiber.StatusBadGateway, "Failed to initiate payment")
	case errors.Is(err, service.ErrFeeNotConfigured):
		return helper.JsonError(c, fiber.StatusNotFound, "Activation fee not configured. Please contact support.")
	case errors.Is(err, service.ErrNoReceiptPending):
		return helper.JsonError(c, fiber.StatusConflict, "No payment receipt is waiting for confirmation")
	}
	return helper.FromUpstreamError(c, err)
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("reqid").(string)
	return id
}
