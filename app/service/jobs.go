package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/config"
)

const defaultBatchSize = int32(100)

type fulfiller interface {
	Fulfill(ctx context.Context, checkoutRequestID string) error
}

type offlineNotifier interface {
	NotifyOfflineFulfillment(ctx context.Context, checkoutRequestID string, status entity.TransactionStatus)
}

// ReconcileService sweeps transactions stuck in non-terminal states: pushes
// whose callback never arrived are expired, confirmed payments that were
// never fulfilled are re-driven, and in-flight dispatches with no outcome
// are flagged for manual reconciliation.
type ReconcileService struct {
	txns      transactionRepository
	errorRepo errorLogRepository
	engine    fulfiller
	notifier  offlineNotifier
	cfg       config.JobsConfig
	logger    logrus.FieldLogger
}

func NewReconcileService(txns transactionRepository, errorRepo errorLogRepository, engine fulfiller, notifier offlineNotifier, cfg config.JobsConfig) *ReconcileService {
	return &ReconcileService{
		txns:      txns,
		errorRepo: errorRepo,
		engine:    engine,
		notifier:  notifier,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("reconcile-job"),
	}
}

func (s *ReconcileService) RunBatch(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.StuckAfter)
	items, err := s.txns.ListStuck(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, txn := range items {
		if txn == nil {
			continue
		}
		if err := s.reconcileOne(ctx, txn); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *ReconcileService) reconcileOne(ctx context.Context, txn *entity.Transaction) error {
	switch txn.Status {
	case entity.StatusPushInitiated:
		// The rail never called back; the push prompt has long expired.
		moved, err := s.txns.Transition(ctx, txn.CheckoutRequestID,
			entity.StatusPushInitiated, entity.StatusMpesaPaymentFailed)
		if err != nil {
			return err
		}
		if moved {
			id := txn.CheckoutRequestID
			_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
				Kind:              entity.ErrKindStkPayment,
				CheckoutRequestID: &id,
				Context:           "payment callback never arrived, expired by reconcile job",
				CreatedAt:         time.Now().UTC(),
			})
		}
		return nil

	case entity.StatusReceivedPendingFulfillment:
		s.logger.WithField("checkout_request_id", txn.CheckoutRequestID).
			Info("re-driving stuck fulfillment")
		if err := s.engine.Fulfill(ctx, txn.CheckoutRequestID); err != nil {
			return err
		}
		// Report where fulfillment actually landed, not where the sweep
		// picked the transaction up.
		status := txn.Status
		if updated, err := s.txns.FindByCheckoutRequestID(ctx, txn.CheckoutRequestID); err == nil && updated != nil {
			status = updated.Status
		}
		s.notifier.NotifyOfflineFulfillment(ctx, txn.CheckoutRequestID, status)
		return nil

	case entity.StatusFulfillmentInProgress:
		// The worker died mid-dispatch; the upstream outcome is unknown and
		// a retry could double-load airtime.
		moved, err := s.txns.Transition(ctx, txn.CheckoutRequestID,
			entity.StatusFulfillmentInProgress, entity.StatusCriticalFulfillmentError)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if err := s.txns.MarkReconciliationNeeded(ctx, txn.CheckoutRequestID); err != nil {
			return err
		}

		id := txn.CheckoutRequestID
		subKind := entity.ErrSubKindRuntimeException
		_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
			Kind:              entity.ErrKindCriticalFulfillment,
			SubKind:           &subKind,
			CheckoutRequestID: &id,
			Context:           fmt.Sprintf("stuck in %s since %s", txn.Status, txn.UpdatedAt.UTC().Format(time.RFC3339)),
			CreatedAt:         time.Now().UTC(),
		})
		return nil

	case entity.StatusReversalPendingConfirmation:
		// The rail's answer is overdue. The status stays put, a late result
		// callback can still settle it, but the row gets flagged for manual
		// follow-up once.
		if txn.ReconciliationNeeded {
			return nil
		}
		if err := s.txns.MarkReconciliationNeeded(ctx, txn.CheckoutRequestID); err != nil {
			return err
		}

		id := txn.CheckoutRequestID
		_ = s.errorRepo.Create(ctx, &entity.ErrorLog{
			Kind:              entity.ErrKindStkCallback,
			CheckoutRequestID: &id,
			Context:           fmt.Sprintf("reversal confirmation overdue since %s", txn.UpdatedAt.UTC().Format(time.RFC3339)),
			CreatedAt:         time.Now().UTC(),
		})
		return nil
	}

	return nil
}

func (s *ReconcileService) batchSize() int32 {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return defaultBatchSize
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
