package entity

import "time"

// Stored error taxonomy. Kind is the top-level type, SubKind refines
// fulfillment failures.
const (
	ErrKindStkPushInitiation     = "STK_PUSH_INITIATION_ERROR"
	ErrKindStkCallback           = "STK_CALLBACK_ERROR"
	ErrKindStkPayment            = "STK_PAYMENT_ERROR"
	ErrKindAirtimeFulfillment    = "AIRTIME_FULFILLMENT_ERROR"
	ErrKindFloatReconciliation   = "FLOAT_RECONCILIATION_WARNING"
	ErrKindAnalyticsNotification = "ANALYTICS_NOTIFICATION_ERROR"
	ErrKindCriticalFulfillment   = "CRITICAL_FULFILLMENT_ERROR"
)

const (
	ErrSubKindInvalidAmountRange    = "INVALID_AMOUNT_RANGE"
	ErrSubKindUnknownCarrier        = "UNKNOWN_CARRIER"
	ErrSubKindAirtimeDispatchFailed = "AIRTIME_DISPATCH_FAILED"
	ErrSubKindRuntimeException      = "RUNTIME_EXCEPTION"
)

// ErrorLog is a durable record of a failure, keeping the raw upstream
// context out of user-visible responses.
type ErrorLog struct {
	ID uint64

	Kind    string
	SubKind *string

	CheckoutRequestID *string
	Context           string

	CreatedAt time.Time
}
