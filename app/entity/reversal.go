package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReversalPending is written once the rail accepts a reversal submission
// and closed in place when the result or timeout callback lands, keeping
// the reversal attempt on record.
type ReversalPending struct {
	CheckoutRequestID string

	// OriginatorConversationID is the rail's correlation id from the
	// reversal acknowledgement; result and timeout callbacks echo it.
	OriginatorConversationID string

	OriginalAmount decimal.Decimal
	PayerMsisdn    string
	RequestPayload string

	// ResultCode and ClosedAt are set when the rail answers. An open
	// record has ClosedAt nil.
	ResultCode *int
	ClosedAt   *time.Time

	InitiatedAt time.Time
}

// ReversalFailed records a reversal the rail rejected, failed to confirm,
// or timed out on. These need manual reconciliation.
type ReversalFailed struct {
	CheckoutRequestID string

	Reason         string
	OriginalAmount decimal.Decimal

	CreatedAt time.Time
}
