package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/daraja"
	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/app/phone"
	"github.com/sokofone/ms-go-airtime/config"
)

var (
	minTopupAmount = decimal.NewFromInt(5)
	maxTopupAmount = decimal.NewFromInt(5000)
)

type transactionRepository interface {
	CreateRequest(ctx context.Context, req *entity.TopupRequest) error
	Create(ctx context.Context, txn *entity.Transaction) error
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Transaction, error)
	FindRequest(ctx context.Context, checkoutRequestID string) (*entity.TopupRequest, error)
	Transition(ctx context.Context, checkoutRequestID string, from, to entity.TransactionStatus) (bool, error)
	TransitionWithPayment(ctx context.Context, checkoutRequestID string, from, to entity.TransactionStatus, receipt string, amount decimal.Decimal) (bool, error)
	SetProviderUsed(ctx context.Context, checkoutRequestID, provider string, fallbackAttempted bool) error
	MarkReconciliationNeeded(ctx context.Context, checkoutRequestID string) error
	ListStuck(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error)
}

type saleRepository interface {
	Create(ctx context.Context, sale *entity.Sale) error
	SetDispatchOutcome(ctx context.Context, checkoutRequestID, providerUsed, dispatchResult string) error
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Sale, error)
}

type pushClient interface {
	STKPush(ctx context.Context, payerMsisdn string, amount int64, accountRef string) (*daraja.STKPushResponse, error)
}

type airtimeDispatcher interface {
	Dispatch(ctx context.Context, checkoutRequestID string, carrier phone.Carrier, destination string, originalAmount, dispatchAmount decimal.Decimal) (*DispatchOutcome, error)
}

type bonusComputer interface {
	ComputeBonus(ctx context.Context, carrier phone.Carrier, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
}

type reversalInitiator interface {
	Initiate(ctx context.Context, checkoutRequestID, payerMsisdn string, amount decimal.Decimal) error
}

type saleNotifier interface {
	NotifySale(ctx context.Context, sale *entity.Sale)
}

// InitiationInput is a validated-enough top-up request: raw msisdns and a
// whole-shilling amount.
type InitiationInput struct {
	PayerMsisdn       string
	DestinationMsisdn string
	Amount            int64
	RawPayload        string
}

// InitiationResult is what the customer gets back while the rail prompts
// their handset.
type InitiationResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// TransactionStatusView is the status endpoint's projection over the
// transaction, its frozen request, and any sale.
type TransactionStatusView struct {
	CheckoutRequestID string
	Status            entity.TransactionStatus
	Carrier           string
	Recipient         string
	RequestedAmount   decimal.Decimal
	AmountReceived    decimal.Decimal
	PaymentReceipt    *string
	ProviderUsed      *string
	DispatchedAmount  *decimal.Decimal
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// TopupEngine drives the transaction lifecycle from the two inbound events:
// the initiation request and the payment callback. Every transition is gated
// on the persisted pre-state, so duplicate callbacks cannot replay a debit,
// a dispatch, or a reversal.
type TopupEngine struct {
	txns      transactionRepository
	sales     saleRepository
	errorRepo errorLogRepository
	rail      pushClient
	dispatch  airtimeDispatcher
	bonuses   bonusComputer
	reversals reversalInitiator
	notifier  saleNotifier
	cfg       config.EngineConfig
	logger    logrus.FieldLogger

	// spawn runs fulfillment after the callback has been acknowledged.
	// Swapped for a synchronous call in tests.
	spawn func(checkoutRequestID string)
}

func NewTopupEngine(
	txns transactionRepository,
	sales saleRepository,
	errorRepo errorLogRepository,
	rail pushClient,
	dispatch airtimeDispatcher,
	bonuses bonusComputer,
	reversals reversalInitiator,
	notifier saleNotifier,
	cfg config.EngineConfig,
) *TopupEngine {
	e := &TopupEngine{
		txns:      txns,
		sales:     sales,
		errorRepo: errorRepo,
		rail:      rail,
		dispatch:  dispatch,
		bonuses:   bonuses,
		reversals: reversals,
		notifier:  notifier,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("topup-engine"),
	}
	e.spawn = e.fulfillInBackground
	return e
}

// HandleInitiation validates the request, pushes the charge to the payer's
// handset, and persists the pending transaction under the rail's checkout
// request id.
func (e *TopupEngine) HandleInitiation(ctx context.Context, input *InitiationInput) (*InitiationResult, error) {
	amount := decimal.NewFromInt(input.Amount)
	if amount.LessThan(minTopupAmount) || amount.GreaterThan(maxTopupAmount) {
		e.recordInitiationError(ctx, nil, entity.ErrSubKindInvalidAmountRange,
			fmt.Sprintf("amount=%d", input.Amount))
		return nil, ErrAmountOutOfRange
	}

	payer, err := phone.Normalize(input.PayerMsisdn)
	if err != nil {
		return nil, fmt.Errorf("%w: payer msisdn", ErrInvalidRequest)
	}

	destination, err := phone.Normalize(input.DestinationMsisdn)
	if err != nil {
		return nil, fmt.Errorf("%w: destination msisdn", ErrInvalidRequest)
	}

	carrier := phone.Classify(destination)
	if !carrier.Supported() {
		e.recordInitiationError(ctx, nil, entity.ErrSubKindUnknownCarrier,
			fmt.Sprintf("destination=%s", destination))
		return nil, ErrCarrierNotSupported
	}

	push, err := e.rail.STKPush(ctx, railMsisdn(payer), input.Amount, destination)
	if err != nil {
		e.recordInitiationError(ctx, nil, "", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	now := time.Now().UTC()
	request := &entity.TopupRequest{
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		PayerMsisdn:       payer,
		DestinationMsisdn: destination,
		Carrier:           string(carrier),
		RequestedAmount:   amount,
		PayloadSnapshot:   input.RawPayload,
		CreatedAt:         now,
	}
	if err := e.txns.CreateRequest(ctx, request); err != nil {
		e.recordInitiationError(ctx, &push.CheckoutRequestID, "", err.Error())
		return nil, err
	}

	txn := &entity.Transaction{
		CheckoutRequestID: push.CheckoutRequestID,
		Status:            entity.StatusPushInitiated,
		AmountReceived:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.txns.Create(ctx, txn); err != nil {
		e.recordInitiationError(ctx, &push.CheckoutRequestID, "", err.Error())
		return nil, err
	}

	return &InitiationResult{
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

// HandlePaymentCallback processes the rail's payment result. It never
// returns an error for business failures; the controller acknowledges the
// rail regardless, and failures land in the error store.
func (e *TopupEngine) HandlePaymentCallback(ctx context.Context, cb *daraja.STKCallback) error {
	txn, err := e.txns.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return err
	}
	if txn == nil {
		e.recordCallbackError(ctx, cb.CheckoutRequestID,
			fmt.Sprintf("callback for unknown checkout request, result_code=%d", cb.ResultCode))
		return nil
	}

	if cb.ResultCode != 0 {
		moved, err := e.txns.Transition(ctx, cb.CheckoutRequestID,
			entity.StatusPushInitiated, entity.StatusMpesaPaymentFailed)
		if err != nil {
			return err
		}
		if moved {
			id := cb.CheckoutRequestID
			_ = e.errorRepo.Create(ctx, &entity.ErrorLog{
				Kind:              entity.ErrKindStkPayment,
				CheckoutRequestID: &id,
				Context:           fmt.Sprintf("result_code=%d desc=%s", cb.ResultCode, cb.ResultDesc),
				CreatedAt:         time.Now().UTC(),
			})
		}
		return nil
	}

	amount := cb.Amount()
	if amount.IsZero() {
		if request, err := e.txns.FindRequest(ctx, cb.CheckoutRequestID); err == nil && request != nil {
			amount = request.RequestedAmount
		}
	}

	moved, err := e.txns.TransitionWithPayment(ctx, cb.CheckoutRequestID,
		entity.StatusPushInitiated, entity.StatusReceivedPendingFulfillment,
		cb.ReceiptNumber(), amount)
	if err != nil {
		return err
	}
	if !moved {
		// Duplicate delivery; the first one owns fulfillment.
		return nil
	}

	e.spawn(cb.CheckoutRequestID)
	return nil
}

// Fulfill dispatches airtime for a confirmed payment. Safe to call
// repeatedly; only the caller that wins the pending-to-in-progress
// transition does any work.
func (e *TopupEngine) Fulfill(ctx context.Context, checkoutRequestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.markCritical(ctx, checkoutRequestID, fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("fulfillment panic: %v", r)
		}
	}()

	moved, err := e.txns.Transition(ctx, checkoutRequestID,
		entity.StatusReceivedPendingFulfillment, entity.StatusFulfillmentInProgress)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	txn, err := e.txns.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return err
	}
	request, err := e.txns.FindRequest(ctx, checkoutRequestID)
	if err != nil {
		return err
	}
	if txn == nil || request == nil {
		e.markCritical(ctx, checkoutRequestID, "transaction or request record missing during fulfillment")
		return nil
	}

	amount := txn.AmountReceived
	if amount.LessThan(minTopupAmount) || amount.GreaterThan(maxTopupAmount) {
		return e.failFulfillment(ctx, request, amount, entity.ErrSubKindInvalidAmountRange,
			fmt.Sprintf("collected amount %s outside allowed range", amount))
	}

	carrier := phone.Carrier(request.Carrier)
	if !carrier.Supported() {
		return e.failFulfillment(ctx, request, amount, entity.ErrSubKindUnknownCarrier,
			fmt.Sprintf("carrier=%s", request.Carrier))
	}

	bonus, pct, err := e.bonuses.ComputeBonus(ctx, carrier, amount)
	if err != nil {
		e.logger.WithField("error", err.Error()).Warn("bonus lookup failed, dispatching without bonus")
		bonus, pct = decimal.Zero, decimal.Zero
	}
	dispatchAmount := amount.Add(bonus)

	now := time.Now().UTC()
	sale := &entity.Sale{
		CheckoutRequestID: checkoutRequestID,
		OriginalAmount:    amount,
		Bonus:             bonus,
		DispatchedAmount:  dispatchAmount,
		BonusPercentage:   pct,
		Carrier:           request.Carrier,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.sales.Create(ctx, sale); err != nil {
		e.logger.WithFields(logrus.Fields{
			"checkout_request_id": checkoutRequestID,
			"error":               err.Error(),
		}).Error("sale record write failed")
	}

	outcome, err := e.dispatch.Dispatch(ctx, checkoutRequestID, carrier,
		request.DestinationMsisdn, amount, dispatchAmount)
	if err != nil {
		return e.failFulfillment(ctx, request, amount, entity.ErrSubKindAirtimeDispatchFailed, err.Error())
	}

	completedAt := time.Now().UTC()
	if err := e.sales.SetDispatchOutcome(ctx, checkoutRequestID,
		outcome.ProviderLabel, outcome.ProviderTxnID); err != nil {
		e.logger.WithField("error", err.Error()).Error("sale outcome write failed")
	}
	if err := e.txns.SetProviderUsed(ctx, checkoutRequestID,
		outcome.ProviderLabel, outcome.FallbackAttempted); err != nil {
		e.logger.WithField("error", err.Error()).Error("provider label write failed")
	}

	if _, err := e.txns.Transition(ctx, checkoutRequestID,
		entity.StatusFulfillmentInProgress, entity.StatusCompletedAndFulfilled); err != nil {
		return err
	}

	sale.ProviderUsed = &outcome.ProviderLabel
	sale.CompletedAt = &completedAt
	e.notifier.NotifySale(ctx, sale)

	return nil
}

// GetStatus assembles the customer-facing view of one transaction.
func (e *TopupEngine) GetStatus(ctx context.Context, checkoutRequestID string) (*TransactionStatusView, error) {
	txn, err := e.txns.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}

	view := &TransactionStatusView{
		CheckoutRequestID: txn.CheckoutRequestID,
		Status:            txn.Status,
		AmountReceived:    txn.AmountReceived,
		PaymentReceipt:    txn.PaymentReceipt,
		ProviderUsed:      txn.ProviderUsed,
		CreatedAt:         txn.CreatedAt,
	}

	if request, err := e.txns.FindRequest(ctx, checkoutRequestID); err == nil && request != nil {
		view.Carrier = request.Carrier
		view.Recipient = request.DestinationMsisdn
		view.RequestedAmount = request.RequestedAmount
	}
	if sale, err := e.sales.FindByCheckoutRequestID(ctx, checkoutRequestID); err == nil && sale != nil {
		dispatched := sale.DispatchedAmount
		view.DispatchedAmount = &dispatched
		view.CompletedAt = sale.CompletedAt
	}

	return view, nil
}

func (e *TopupEngine) fulfillInBackground(checkoutRequestID string) {
	go func() {
		timeout := e.cfg.DispatchTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := e.Fulfill(ctx, checkoutRequestID); err != nil {
			e.logger.WithFields(logrus.Fields{
				"checkout_request_id": checkoutRequestID,
				"error":               err.Error(),
			}).Error("background fulfillment failed")
		}
	}()
}

// failFulfillment records the failure, moves the transaction to the failed
// state, and hands it to the reversal path. Every confirmed payment keeps a
// sale row even when fulfillment never dispatched, so the failure path
// writes one with zero bonus if the happy path did not get that far.
func (e *TopupEngine) failFulfillment(ctx context.Context, request *entity.TopupRequest, amount decimal.Decimal, subKind, detail string) error {
	id := request.CheckoutRequestID
	sk := subKind
	_ = e.errorRepo.Create(ctx, &entity.ErrorLog{
		Kind:              entity.ErrKindAirtimeFulfillment,
		SubKind:           &sk,
		CheckoutRequestID: &id,
		Context:           truncate(detail, 1024),
		CreatedAt:         time.Now().UTC(),
	})

	if existing, ferr := e.sales.FindByCheckoutRequestID(ctx, request.CheckoutRequestID); ferr == nil && existing == nil {
		now := time.Now().UTC()
		result := truncate(detail, 255)
		if cerr := e.sales.Create(ctx, &entity.Sale{
			CheckoutRequestID: request.CheckoutRequestID,
			OriginalAmount:    amount,
			Bonus:             decimal.Zero,
			DispatchedAmount:  amount,
			BonusPercentage:   decimal.Zero,
			Carrier:           request.Carrier,
			DispatchResult:    &result,
			CreatedAt:         now,
			UpdatedAt:         now,
		}); cerr != nil {
			e.logger.WithFields(logrus.Fields{
				"checkout_request_id": request.CheckoutRequestID,
				"error":               cerr.Error(),
			}).Error("sale record write failed")
		}
	}

	moved, err := e.txns.Transition(ctx, request.CheckoutRequestID,
		entity.StatusFulfillmentInProgress, entity.StatusReceivedFulfillmentFailed)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	return e.reversals.Initiate(ctx, request.CheckoutRequestID, request.PayerMsisdn, amount)
}

func (e *TopupEngine) markCritical(ctx context.Context, checkoutRequestID, cause string) {
	e.logger.WithFields(logrus.Fields{
		"checkout_request_id": checkoutRequestID,
		"cause":               cause,
	}).Error("critical fulfillment error")

	if _, err := e.txns.Transition(ctx, checkoutRequestID,
		entity.StatusFulfillmentInProgress, entity.StatusCriticalFulfillmentError); err != nil {
		e.logger.WithField("error", err.Error()).Error("critical transition failed")
	}
	_ = e.txns.MarkReconciliationNeeded(ctx, checkoutRequestID)

	id := checkoutRequestID
	subKind := entity.ErrSubKindRuntimeException
	_ = e.errorRepo.Create(ctx, &entity.ErrorLog{
		Kind:              entity.ErrKindCriticalFulfillment,
		SubKind:           &subKind,
		CheckoutRequestID: &id,
		Context:           truncate(cause, 1024),
		CreatedAt:         time.Now().UTC(),
	})
}

func (e *TopupEngine) recordInitiationError(ctx context.Context, checkoutRequestID *string, subKind, detail string) {
	log := &entity.ErrorLog{
		Kind:              entity.ErrKindStkPushInitiation,
		CheckoutRequestID: checkoutRequestID,
		Context:           truncate(detail, 1024),
		CreatedAt:         time.Now().UTC(),
	}
	if subKind != "" {
		sk := subKind
		log.SubKind = &sk
	}
	_ = e.errorRepo.Create(ctx, log)
}

func (e *TopupEngine) recordCallbackError(ctx context.Context, checkoutRequestID, detail string) {
	id := checkoutRequestID
	_ = e.errorRepo.Create(ctx, &entity.ErrorLog{
		Kind:              entity.ErrKindStkCallback,
		CheckoutRequestID: &id,
		Context:           truncate(detail, 1024),
		CreatedAt:         time.Now().UTC(),
	})
}

// railMsisdn renders a national number the way the rail's push API wants it:
// country code, no plus.
func railMsisdn(national string) string {
	return "254" + national[1:]
}
