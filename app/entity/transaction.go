package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tracks a top-up through the payment and fulfillment
// lifecycle. Transitions are gated on the persisted pre-state, so repeated
// callbacks cannot replay a side effect.
type TransactionStatus string

const (
	StatusPushInitiated               TransactionStatus = "PUSH_INITIATED"
	StatusMpesaPaymentFailed          TransactionStatus = "MPESA_PAYMENT_FAILED"
	StatusReceivedPendingFulfillment  TransactionStatus = "RECEIVED_PENDING_FULFILLMENT"
	StatusFulfillmentInProgress       TransactionStatus = "FULFILLMENT_IN_PROGRESS"
	StatusCompletedAndFulfilled       TransactionStatus = "COMPLETED_AND_FULFILLED"
	StatusReceivedFulfillmentFailed   TransactionStatus = "RECEIVED_FULFILLMENT_FAILED"
	StatusReversalPendingConfirmation TransactionStatus = "REVERSAL_PENDING_CONFIRMATION"
	StatusReversalInitiationFailed    TransactionStatus = "REVERSAL_INITIATION_FAILED"
	StatusReversedSuccessfully        TransactionStatus = "REVERSED_SUCCESSFULLY"
	StatusReversalFailedConfirmation  TransactionStatus = "REVERSAL_FAILED_CONFIRMATION"
	StatusReversalTimedOut            TransactionStatus = "REVERSAL_TIMED_OUT"
	StatusCriticalFulfillmentError    TransactionStatus = "CRITICAL_FULFILLMENT_ERROR"
)

// Terminal reports whether no further transition can leave this status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusMpesaPaymentFailed,
		StatusCompletedAndFulfilled,
		StatusReversedSuccessfully,
		StatusReversalFailedConfirmation,
		StatusReversalTimedOut,
		StatusCriticalFulfillmentError:
		return true
	default:
		return false
	}
}

// NeedsReconciliation reports whether a status requires manual follow-up.
func (s TransactionStatus) NeedsReconciliation() bool {
	switch s {
	case StatusReversalFailedConfirmation, StatusReversalTimedOut, StatusCriticalFulfillmentError, StatusReversalInitiationFailed:
		return true
	default:
		return false
	}
}

// Provider labels recorded on transactions and sales.
const (
	ProviderDealerDirect       = "dealer-direct"
	ProviderAggregator         = "aggregator"
	ProviderAggregatorFallback = "aggregator-fallback"
)

// Transaction is the lifecycle record for one top-up, keyed by the payment
// rail's CheckoutRequestID so callbacks match in a single lookup.
type Transaction struct {
	CheckoutRequestID string

	Status TransactionStatus

	PaymentReceipt *string
	AmountReceived decimal.Decimal

	ProviderUsed         *string
	FallbackAttempted    bool
	ReconciliationNeeded bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TopupRequest is the frozen snapshot of what the customer asked for.
type TopupRequest struct {
	CheckoutRequestID string
	MerchantRequestID string

	PayerMsisdn       string
	DestinationMsisdn string
	Carrier           string

	RequestedAmount decimal.Decimal
	PayloadSnapshot string

	CreatedAt time.Time
}
