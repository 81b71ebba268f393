package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale records the airtime actually dispatched for a confirmed payment.
// One exists for every transaction that reached RECEIVED_PENDING_FULFILLMENT.
type Sale struct {
	CheckoutRequestID string

	OriginalAmount   decimal.Decimal
	Bonus            decimal.Decimal
	DispatchedAmount decimal.Decimal
	BonusPercentage  decimal.Decimal

	Carrier      string
	ProviderUsed *string

	DispatchResult *string
	CompletedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
