package model

import (
	"strconv"
	"time"
)

// Tokens are the upstream credentials bound to one browser session.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Role    string `json:"role,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
}

func (t Tokens) Empty() bool { return t.Access == "" }

// Breadcrumb keys. They mirror the names the payment flow has always used so
// clients reading them back do not need a mapping table.
const (
	KeyPaymentReference = "paymentReference"
	KeyPaymentItemType  = "paymentItemType"
	KeyPaymentItemID    = "paymentItemId"
	KeyPaymentMethod    = "paymentMethod"
	KeyIsScheduled      = "isScheduled"
	KeyPaymentReturnTo  = "paymentReturnTo"
	KeyReceiptPending   = "receiptPending"
)

// Breadcrumbs carry payment context across the redirect to a gateway.
// They are always written and cleared as one unit.
type Breadcrumbs struct {
	Reference      string
	ItemType       string
	ItemID         string
	Method         string
	IsScheduled    bool
	ReturnTo       string
	ReceiptPending bool
}

func (b Breadcrumbs) Empty() bool {
	return b.Reference == "" && b.ItemType == "" && b.ItemID == "" && b.Method == "" &&
		!b.IsScheduled && b.ReturnTo == "" && !b.ReceiptPending
}

func (b Breadcrumbs) ToMap() map[string]string {
	m := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put(KeyPaymentReference, b.Reference)
	put(KeyPaymentItemType, b.ItemType)
	put(KeyPaymentItemID, b.ItemID)
	put(KeyPaymentMethod, b.Method)
	put(KeyPaymentReturnTo, b.ReturnTo)
	if b.IsScheduled {
		m[KeyIsScheduled] = "true"
	}
	if b.ReceiptPending {
		m[KeyReceiptPending] = "true"
	}
	return m
}

func BreadcrumbsFromMap(m map[string]string) Breadcrumbs {
	flag := func(k string) bool {
		v, err := strconv.ParseBool(m[k])
		return err == nil && v
	}
	return Breadcrumbs{
		Reference:      m[KeyPaymentReference],
		ItemType:       m[KeyPaymentItemType],
		ItemID:         m[KeyPaymentItemID],
		Method:         m[KeyPaymentMethod],
		IsScheduled:    flag(KeyIsScheduled),
		ReturnTo:       m[KeyPaymentReturnTo],
		ReceiptPending: flag(KeyReceiptPending),
	}
}

// Session is the explicit per-client context every network-calling operation receives.
type Session struct {
	ID              string    `json:"id"`
	Tokens          Tokens    `json:"tokens"`
	ActiveAttemptID int64     `json:"active_attempt_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// not written to the store yet; the first write persists it
	Transient bool `json:"-"`
}

func (s *Session) Authenticated() bool { return s != nil && !s.Tokens.Empty() }
