package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/daraja"
	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
)

type reversalRepository interface {
	CreatePending(ctx context.Context, pending *entity.ReversalPending) error
	FindPendingByOriginator(ctx context.Context, originatorConversationID string) (*entity.ReversalPending, error)
	ClosePending(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error)
	CreateFailed(ctx context.Context, failed *entity.ReversalFailed) error
}

type reversalClient interface {
	Reverse(ctx context.Context, transactionID string, amount int64, remarks string) (*daraja.ReversalRequest, *daraja.ReversalResponse, error)
}

// ReversalService refunds collected payments whose airtime could not be
// delivered, and settles the rail's asynchronous answers.
type ReversalService struct {
	txns      transactionRepository
	reversals reversalRepository
	errorRepo errorLogRepository
	rail      reversalClient
	logger    logrus.FieldLogger
}

func NewReversalService(txns transactionRepository, reversals reversalRepository, errorRepo errorLogRepository, rail reversalClient) *ReversalService {
	return &ReversalService{
		txns:      txns,
		reversals: reversals,
		errorRepo: errorRepo,
		rail:      rail,
		logger:    factory.NewModuleLogger("reversal-service"),
	}
}

// Initiate submits a reversal for a failed fulfillment. The pending record
// is written only after the rail accepts the submission.
func (s *ReversalService) Initiate(ctx context.Context, checkoutRequestID, payerMsisdn string, amount decimal.Decimal) error {
	body, resp, err := s.rail.Reverse(ctx, checkoutRequestID, amount.IntPart(), "airtime fulfillment failed")
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"checkout_request_id": checkoutRequestID,
			"error":               err.Error(),
		}).Error("reversal submission rejected")

		if _, terr := s.txns.Transition(ctx, checkoutRequestID,
			entity.StatusReceivedFulfillmentFailed, entity.StatusReversalInitiationFailed); terr != nil {
			return terr
		}
		_ = s.txns.MarkReconciliationNeeded(ctx, checkoutRequestID)
		return s.reversals.CreateFailed(ctx, &entity.ReversalFailed{
			CheckoutRequestID: checkoutRequestID,
			Reason:            truncate(fmt.Sprintf("submission rejected: %v", err), 1024),
			OriginalAmount:    amount,
			CreatedAt:         time.Now().UTC(),
		})
	}

	payload, _ := json.Marshal(body)
	if err := s.reversals.CreatePending(ctx, &entity.ReversalPending{
		CheckoutRequestID:        checkoutRequestID,
		OriginatorConversationID: resp.OriginatorConversationID,
		OriginalAmount:           amount,
		PayerMsisdn:              payerMsisdn,
		RequestPayload:           string(payload),
		InitiatedAt:              time.Now().UTC(),
	}); err != nil {
		return err
	}

	_, err = s.txns.Transition(ctx, checkoutRequestID,
		entity.StatusReceivedFulfillmentFailed, entity.StatusReversalPendingConfirmation)
	return err
}

// HandleResult settles a reversal-result callback. Unknown correlation ids
// and duplicate deliveries are absorbed; the rail always gets its ack.
func (s *ReversalService) HandleResult(ctx context.Context, result *daraja.ReversalResult) error {
	pending, err := s.reversals.FindPendingByOriginator(ctx, result.OriginatorConversationID)
	if err != nil {
		return err
	}
	if pending == nil {
		_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
			Kind:      entity.ErrKindStkCallback,
			Context:   fmt.Sprintf("reversal result for unknown originator=%s", result.OriginatorConversationID),
			CreatedAt: time.Now().UTC(),
		})
		return nil
	}

	closed, err := s.reversals.ClosePending(ctx, pending.CheckoutRequestID, result.ResultCode)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	if result.ResultCode == 0 {
		_, err := s.txns.Transition(ctx, pending.CheckoutRequestID,
			entity.StatusReversalPendingConfirmation, entity.StatusReversedSuccessfully)
		return err
	}

	if _, err := s.txns.Transition(ctx, pending.CheckoutRequestID,
		entity.StatusReversalPendingConfirmation, entity.StatusReversalFailedConfirmation); err != nil {
		return err
	}
	_ = s.txns.MarkReconciliationNeeded(ctx, pending.CheckoutRequestID)
	return s.reversals.CreateFailed(ctx, &entity.ReversalFailed{
		CheckoutRequestID: pending.CheckoutRequestID,
		Reason:            truncate(fmt.Sprintf("result_code=%d desc=%s", result.ResultCode, result.ResultDesc), 1024),
		OriginalAmount:    pending.OriginalAmount,
		CreatedAt:         time.Now().UTC(),
	})
}

// HandleTimeout settles a reversal the rail's queue gave up on.
func (s *ReversalService) HandleTimeout(ctx context.Context, result *daraja.ReversalResult) error {
	pending, err := s.reversals.FindPendingByOriginator(ctx, result.OriginatorConversationID)
	if err != nil {
		return err
	}
	if pending == nil {
		_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
			Kind:      entity.ErrKindStkCallback,
			Context:   fmt.Sprintf("reversal timeout for unknown originator=%s", result.OriginatorConversationID),
			CreatedAt: time.Now().UTC(),
		})
		return nil
	}

	closed, err := s.reversals.ClosePending(ctx, pending.CheckoutRequestID, result.ResultCode)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	if _, err := s.txns.Transition(ctx, pending.CheckoutRequestID,
		entity.StatusReversalPendingConfirmation, entity.StatusReversalTimedOut); err != nil {
		return err
	}
	_ = s.txns.MarkReconciliationNeeded(ctx, pending.CheckoutRequestID)
	return s.reversals.CreateFailed(ctx, &entity.ReversalFailed{
		CheckoutRequestID: pending.CheckoutRequestID,
		Reason:            "rail queue timeout",
		OriginalAmount:    pending.OriginalAmount,
		CreatedAt:         time.Now().UTC(),
	})
}
