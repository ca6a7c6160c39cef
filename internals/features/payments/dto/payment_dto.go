package dto

import (
	"github.com/shopspring/decimal"
)

/* ===================== REQUESTS ===================== */

type QuoteRequest struct {
	ItemType  string          `json:"item_type" validate:"required,oneof=course diploma activation"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PromoCode string          `json:"promo_code" validate:"omitempty,max=64"`
	Meta      map[string]any  `json:"meta,omitempty"`
}

type InitiateRequest struct {
	ItemType    string          `json:"item_type" validate:"required,oneof=course diploma activation"`
	ItemID      int64           `json:"item_id" validate:"gte=0"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Gateway     string          `json:"gateway" validate:"required,oneof=paystack flutterwave"`
	PromoCode   string          `json:"promo_code" validate:"omitempty,max=64"`
	IsScheduled bool            `json:"is_scheduled"`
	ReturnTo    string          `json:"return_to" validate:"omitempty,max=512"`
	Meta        map[string]any  `json:"meta,omitempty"`
}

// CallbackQuery is what a gateway appends when it sends the user back.
// Paystack uses reference/trxref, Flutterwave tx_ref and status.
type CallbackQuery struct {
	Reference string `query:"reference"`
	Trxref    string `query:"trxref"`
	TxRef     string `query:"tx_ref"`
	Status    string `query:"status"`
	Method    string `query:"method"`
}

type ActivationFeeQuery struct {
	Type        string `query:"type" validate:"omitempty,oneof=exam interview"`
	ExamID      int64  `query:"exam_id" validate:"gte=0"`
	SubjectID   int64  `query:"subject_id" validate:"gte=0"`
	ExamTitle   string `query:"exam_title"`
	SubjectName string `query:"subject_name"`
	ReturnTo    string `query:"return_to"`
}

/* ===================== RESPONSES ===================== */

type Breakdown struct {
	PlatformPercent decimal.Decimal `json:"platform_percent"`
	PlatformAmount  decimal.Decimal `json:"platform_amount"`
	CreatorPercent  decimal.Decimal `json:"creator_percent"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
}

type QuoteDisplay struct {
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount,omitempty"`
	PlatformFee string `json:"platform_fee"`
	CreatorGets string `json:"creator_gets,omitempty"`
	Total       string `json:"total"`
}

type QuoteView struct {
	ItemType   string          `json:"item_type"`
	Currency   string          `json:"currency"`
	Symbol     string          `json:"symbol"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	PromoCode  string          `json:"promo_code,omitempty"`
	PromoError string          `json:"promo_error,omitempty"`
	Breakdown  Breakdown       `json:"breakdown"`
	Display    QuoteDisplay    `json:"display"`
}

type ActivationFeeView struct {
	Title    string          `json:"title"`
	ItemType string          `json:"item_type"`
	ItemID   int64           `json:"item_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Meta     map[string]any  `json:"meta"`
	ReturnTo string          `json:"return_to"`
}

const (
	ActionRedirect = "redirect"
	ActionPopup    = "popup"
)

// PopupConfig is what the Paystack inline widget needs to open.
type PopupConfig struct {
	Key            string `json:"key"`
	Email          string `json:"email"`
	AmountSubunits int64  `json:"amount_subunits"`
	Currency       string `json:"currency"`
	Reference      string `json:"reference"`
}

type InitiateResponse struct {
	Action    string       `json:"action"`
	URL       string       `json:"url,omitempty"`
	Reference string       `json:"reference"`
	Gateway   string       `json:"gateway"`
	Popup     *PopupConfig `json:"popup,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomeReceipt = "receipt"
	OutcomeError   = "error"
)

// Outcome is the terminal state of a verification as the client renders it.
// A receipt outcome has no redirect; the client waits for the user to acknowledge it.
type Outcome struct {
	Status          string         `json:"status"`
	Message         string         `json:"message"`
	Reference       string         `json:"reference,omitempty"`
	Gateway         string         `json:"gateway,omitempty"`
	ItemType        string         `json:"item_type,omitempty"`
	Redirect        string         `json:"redirect,omitempty"`
	RedirectAfterMs int64          `json:"redirect_after_ms"`
	Receipt         map[string]any `json:"receipt,omitempty"`
}

func (o Outcome) Succeeded() bool { return o.Status != OutcomeError }
