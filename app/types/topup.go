package types

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sokofone/ms-go-airtime/app/daraja"
)

// TopupInitiationRequest is the customer-facing entry point: who pays, who
// receives the airtime, and how much. RawPayload keeps the body exactly as
// it arrived for the request snapshot.
type TopupInitiationRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Recipient   string `json:"recipient"`
	Amount      int64  `json:"amount"`

	RawPayload string `json:"-"`
}

func NewTopupInitiationRequestFromContext(ctx echo.Context) (*TopupInitiationRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	var body TopupInitiationRequest
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, err
	}

	body.PhoneNumber = strings.TrimSpace(body.PhoneNumber)
	body.Recipient = strings.TrimSpace(body.Recipient)
	body.RawPayload = string(rawBody)

	return &body, nil
}

func (r *TopupInitiationRequest) Validate() error {
	if r.PhoneNumber == "" {
		return errors.New("phoneNumber is required")
	}
	if r.Recipient == "" {
		return errors.New("recipient is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	return nil
}

// TopupInitiationResponse acknowledges an accepted push. The transaction is
// not paid yet; the customer still has to approve the prompt.
type TopupInitiationResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	MerchantRequestID string `json:"merchantRequestID,omitempty"`
}

// GetTransactionStatusRequest identifies a transaction by its checkout
// request id.
type GetTransactionStatusRequest struct {
	CheckoutRequestID string
}

func NewGetTransactionStatusRequestFromContext(ctx echo.Context) (*GetTransactionStatusRequest, error) {
	return &GetTransactionStatusRequest{
		CheckoutRequestID: strings.TrimSpace(ctx.Param("id")),
	}, nil
}

func (r *GetTransactionStatusRequest) Validate() error {
	if r.CheckoutRequestID == "" {
		return errors.New("transaction id is required")
	}
	return nil
}

// TransactionStatusResponse is the customer-facing projection of one
// transaction.
type TransactionStatusResponse struct {
	CheckoutRequestID string     `json:"checkoutRequestID"`
	Status            string     `json:"status"`
	Carrier           string     `json:"carrier,omitempty"`
	Recipient         string     `json:"recipient,omitempty"`
	RequestedAmount   string     `json:"requestedAmount"`
	AmountReceived    string     `json:"amount"`
	PaymentReceipt    *string    `json:"paymentReceipt,omitempty"`
	ProviderUsed      *string    `json:"providerUsed,omitempty"`
	DispatchedAmount  *string    `json:"dispatchedAmount,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// UpdateBonusRequest sets the per-telco bonus percentages.
type UpdateBonusRequest struct {
	SafaricomPercentage      decimal.Decimal `json:"safaricomPercentage"`
	AfricastalkingPercentage decimal.Decimal `json:"africastalkingPercentage"`
	Actor                    string          `json:"actor"`
}

func NewUpdateBonusRequestFromContext(ctx echo.Context) (*UpdateBonusRequest, error) {
	var body UpdateBonusRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.Actor = strings.TrimSpace(body.Actor)
	return &body, nil
}

func (r *UpdateBonusRequest) Validate() error {
	if r.SafaricomPercentage.IsNegative() || r.AfricastalkingPercentage.IsNegative() {
		return errors.New("percentages must be >= 0")
	}
	if r.Actor == "" {
		return errors.New("actor is required")
	}
	return nil
}

// BonusSettingsResponse is the current bonus configuration.
type BonusSettingsResponse struct {
	SafaricomPercentage      string    `json:"safaricomPercentage"`
	AfricastalkingPercentage string    `json:"africastalkingPercentage"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// NewSTKCallbackFromContext unwraps the payment-result envelope the rail
// posts. Malformed bodies surface as errors; the controller still acks.
func NewSTKCallbackFromContext(ctx echo.Context) (*daraja.STKCallback, error) {
	var envelope daraja.STKCallbackEnvelope
	if err := ctx.Bind(&envelope); err != nil {
		return nil, err
	}
	cb := envelope.Body.STKCallback
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return nil, errors.New("callback missing CheckoutRequestID")
	}
	return &cb, nil
}

// NewReversalResultFromContext unwraps the reversal result or timeout
// envelope.
func NewReversalResultFromContext(ctx echo.Context) (*daraja.ReversalResult, error) {
	var envelope daraja.ReversalResultEnvelope
	if err := ctx.Bind(&envelope); err != nil {
		return nil, err
	}
	result := envelope.Result
	if strings.TrimSpace(result.OriginatorConversationID) == "" {
		return nil, errors.New("result missing OriginatorConversationID")
	}
	return &result, nil
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
