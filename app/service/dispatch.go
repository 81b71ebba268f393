package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/app/phone"
	"github.com/sokofone/ms-go-airtime/app/provider"
	"github.com/sokofone/ms-go-airtime/app/repository"
)

// Aggregator dispatches earn back a fixed share of the paid amount as
// commission, credited to the aggregator float.
var commissionRate = decimal.NewFromFloat(0.04)

type floatLedger interface {
	Adjust(ctx context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error)
	Overwrite(ctx context.Context, name string, balance decimal.Decimal) (decimal.Decimal, error)
}

type errorLogRepository interface {
	Create(ctx context.Context, log *entity.ErrorLog) error
}

// DispatchOutcome describes a completed airtime dispatch.
type DispatchOutcome struct {
	ProviderLabel     string
	ProviderTxnID     string
	FallbackAttempted bool
}

// DispatchService runs the channel-selection and float-accounting policy:
// debit before dispatch, credit back on failure, fall back once for the home
// telco, commission and authoritative-balance overwrite on success.
type DispatchService struct {
	registry  *provider.Registry
	floats    floatLedger
	errorRepo errorLogRepository
	logger    logrus.FieldLogger
}

func NewDispatchService(registry *provider.Registry, floats floatLedger, errorRepo errorLogRepository) *DispatchService {
	return &DispatchService{
		registry:  registry,
		floats:    floats,
		errorRepo: errorRepo,
		logger:    factory.NewModuleLogger("dispatch-service"),
	}
}

// Dispatch loads dispatchAmount (paid amount plus bonus) onto the
// destination. originalAmount is the customer's payment, used for the
// commission. On total failure every float debit has been credited back.
func (s *DispatchService) Dispatch(ctx context.Context, checkoutRequestID string, carrier phone.Carrier, destination string, originalAmount, dispatchAmount decimal.Decimal) (*DispatchOutcome, error) {
	primary, err := s.registry.Primary(carrier)
	if err != nil {
		return nil, err
	}

	result, err := s.attempt(ctx, checkoutRequestID, primary, destination, dispatchAmount)
	if err == nil {
		s.settle(ctx, checkoutRequestID, primary, result, originalAmount, dispatchAmount)
		return &DispatchOutcome{ProviderLabel: primary.Name(), ProviderTxnID: result.ProviderTxnID}, nil
	}

	fallback := s.registry.Fallback(carrier)
	if fallback == nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"checkout_request_id": checkoutRequestID,
		"primary":             primary.Name(),
		"error":               err.Error(),
	}).Warn("primary dispatch failed, attempting fallback")

	result, fallbackErr := s.attempt(ctx, checkoutRequestID, fallback, destination, dispatchAmount)
	if fallbackErr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", err, fallbackErr)
	}

	s.settle(ctx, checkoutRequestID, fallback, result, originalAmount, dispatchAmount)
	return &DispatchOutcome{
		ProviderLabel:     entity.ProviderAggregatorFallback,
		ProviderTxnID:     result.ProviderTxnID,
		FallbackAttempted: true,
	}, nil
}

// attempt debits the channel's float, dispatches, and credits the debit back
// if the dispatch fails. The debit-first order keeps the non-negativity
// check ahead of any money movement upstream.
func (s *DispatchService) attempt(ctx context.Context, checkoutRequestID string, ch provider.Dispatcher, destination string, dispatchAmount decimal.Decimal) (*provider.DispatchResult, error) {
	account := ch.FloatAccount()

	if _, err := s.floats.Adjust(ctx, account, dispatchAmount.Neg()); err != nil {
		if errors.Is(err, repository.ErrInsufficientFloat) {
			s.recordDispatchError(ctx, checkoutRequestID, ch.Name(), err)
			return nil, fmt.Errorf("%w: %v", provider.ErrDispatchFailed, err)
		}
		return nil, err
	}

	result, err := ch.Dispatch(ctx, destination, dispatchAmount)
	if err != nil {
		if _, creditErr := s.floats.Adjust(ctx, account, dispatchAmount); creditErr != nil {
			s.logger.WithFields(logrus.Fields{
				"checkout_request_id": checkoutRequestID,
				"account":             account,
				"error":               creditErr.Error(),
			}).Error("float credit-back failed after dispatch failure")
		}
		s.recordDispatchError(ctx, checkoutRequestID, ch.Name(), err)
		return nil, err
	}

	return result, nil
}

func (s *DispatchService) settle(ctx context.Context, checkoutRequestID string, ch provider.Dispatcher, result *provider.DispatchResult, originalAmount, dispatchAmount decimal.Decimal) {
	account := ch.FloatAccount()

	if account == entity.FloatAfricastalking {
		commission := originalAmount.Mul(commissionRate).Round(2)
		if _, err := s.floats.Adjust(ctx, account, commission); err != nil {
			s.logger.WithFields(logrus.Fields{
				"checkout_request_id": checkoutRequestID,
				"commission":          commission.String(),
				"error":               err.Error(),
			}).Error("commission credit failed")
		}
	}

	if result.Balance == nil {
		return
	}

	previous, err := s.floats.Overwrite(ctx, account, *result.Balance)
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("authoritative balance overwrite failed")
		return
	}

	drift := previous.Sub(*result.Balance)
	if !drift.IsZero() {
		s.logger.WithFields(logrus.Fields{
			"checkout_request_id": checkoutRequestID,
			"account":             account,
			"tracked":             previous.String(),
			"authoritative":       result.Balance.String(),
		}).Warn("tracked float drifted from provider-reported balance")

		id := checkoutRequestID
		_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
			Kind:              entity.ErrKindFloatReconciliation,
			CheckoutRequestID: &id,
			Context: fmt.Sprintf("account=%s tracked=%s authoritative=%s drift=%s",
				account, previous, result.Balance, drift),
			CreatedAt: time.Now().UTC(),
		})
	}
}

func (s *DispatchService) recordDispatchError(ctx context.Context, checkoutRequestID, channel string, dispatchErr error) {
	id := checkoutRequestID
	subKind := entity.ErrSubKindAirtimeDispatchFailed
	_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
		Kind:              entity.ErrKindAirtimeFulfillment,
		SubKind:           &subKind,
		CheckoutRequestID: &id,
		Context:           truncate(fmt.Sprintf("channel=%s: %v", channel, dispatchErr), 1024),
		CreatedAt:         time.Now().UTC(),
	})
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
