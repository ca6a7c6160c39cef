// file: internals/features/payments/model/payment_intent_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

/*
  payment_intents = one gateway checkout opened through this service
  - reference is the gateway reference returned by initiate (unique)
  - receipt keeps the verify payload of a successful verification so a
    repeated callback of the same user is answered without calling upstream
*/

type IntentStatus string

const (
	IntentInitiated IntentStatus = "initiated"
	IntentVerified  IntentStatus = "verified"
	IntentFailed    IntentStatus = "failed"
	IntentCancelled IntentStatus = "cancelled"
)

type PaymentIntentModel struct {
	PaymentIntentID uuid.UUID `gorm:"column:payment_intent_id;type:uuid;default:gen_random_uuid();primaryKey" json:"payment_intent_id"`

	PaymentIntentReference string `gorm:"column:payment_intent_reference;type:varchar(128);not null;uniqueIndex" json:"payment_intent_reference"`
	PaymentIntentSessionID string `gorm:"column:payment_intent_session_id;type:varchar(64);not null;index" json:"-"`
	PaymentIntentUserID    int64  `gorm:"column:payment_intent_user_id" json:"payment_intent_user_id"`

	// paystack | flutterwave
	PaymentIntentGateway  string `gorm:"column:payment_intent_gateway;type:varchar(16);not null" json:"payment_intent_gateway"`
	PaymentIntentItemType string `gorm:"column:payment_intent_item_type;type:varchar(16);not null" json:"payment_intent_item_type"`
	PaymentIntentItemID   int64  `gorm:"column:payment_intent_item_id;not null" json:"payment_intent_item_id"`

	PaymentIntentAmount   decimal.Decimal `gorm:"column:payment_intent_amount;type:numeric(12,2);not null" json:"payment_intent_amount"`
	PaymentIntentCurrency string          `gorm:"column:payment_intent_currency;type:varchar(3);not null" json:"payment_intent_currency"`
	PaymentIntentPromo    *string         `gorm:"column:payment_intent_promo_code;type:varchar(64)" json:"payment_intent_promo_code,omitempty"`

	PaymentIntentStatus IntentStatus   `gorm:"column:payment_intent_status;type:varchar(16);not null;default:'initiated'" json:"payment_intent_status"`
	PaymentIntentMeta   datatypes.JSON `gorm:"column:payment_intent_meta;type:jsonb" json:"payment_intent_meta,omitempty"`

	PaymentIntentReceipt    datatypes.JSON `gorm:"column:payment_intent_receipt;type:jsonb" json:"payment_intent_receipt,omitempty"`
	PaymentIntentFailure    *string        `gorm:"column:payment_intent_failure;type:text" json:"payment_intent_failure,omitempty"`
	PaymentIntentVerifiedAt *time.Time     `gorm:"column:payment_intent_verified_at;type:timestamptz" json:"payment_intent_verified_at,omitempty"`

	// set when the user confirmed a diploma receipt
	PaymentIntentAcknowledgedAt *time.Time `gorm:"column:payment_intent_acknowledged_at;type:timestamptz" json:"payment_intent_acknowledged_at,omitempty"`

	PaymentIntentCreatedAt time.Time `gorm:"column:payment_intent_created_at;type:timestamptz;autoCreateTime" json:"payment_intent_created_at"`
	PaymentIntentUpdatedAt time.Time `gorm:"column:payment_intent_updated_at;type:timestamptz;autoUpdateTime" json:"payment_intent_updated_at"`
}

func (PaymentIntentModel) TableName() string { return "payment_intents" }
