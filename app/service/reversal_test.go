package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokofone/ms-go-airtime/app/daraja"
	"github.com/sokofone/ms-go-airtime/app/entity"
)

type memReversalRepo struct {
	mu      sync.Mutex
	pending map[string]*entity.ReversalPending
	failed  []*entity.ReversalFailed
}

func newMemReversalRepo() *memReversalRepo {
	return &memReversalRepo{pending: map[string]*entity.ReversalPending{}}
}

func (r *memReversalRepo) CreatePending(_ context.Context, pending *entity.ReversalPending) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *pending
	r.pending[pending.CheckoutRequestID] = &copied
	return nil
}

func (r *memReversalRepo) FindPendingByOriginator(_ context.Context, originatorConversationID string) (*entity.ReversalPending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pending := range r.pending {
		if pending.OriginatorConversationID == originatorConversationID {
			copied := *pending
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memReversalRepo) ClosePending(_ context.Context, checkoutRequestID string, resultCode int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.pending[checkoutRequestID]
	if !ok || pending.ClosedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	pending.ResultCode = &resultCode
	pending.ClosedAt = &now
	return true, nil
}

func (r *memReversalRepo) CreateFailed(_ context.Context, failed *entity.ReversalFailed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *failed
	r.failed = append(r.failed, &copied)
	return nil
}

type fakeReversalRail struct {
	err   error
	calls int
}

func (f *fakeReversalRail) Reverse(_ context.Context, transactionID string, amount int64, remarks string) (*daraja.ReversalRequest, *daraja.ReversalResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return &daraja.ReversalRequest{
			TransactionID: transactionID,
			Amount:        amount,
			Remarks:       remarks,
		}, &daraja.ReversalResponse{
			OriginatorConversationID: "orig-" + transactionID,
			ConversationID:           "conv-" + transactionID,
			ResponseCode:             "0",
			ResponseDescription:      "Accept the service request successfully.",
		}, nil
}

type reversalFixture struct {
	svc       *ReversalService
	txns      *memTxnRepo
	reversals *memReversalRepo
	errs      *memErrorRepo
	rail      *fakeReversalRail
}

func newReversalFixture(t *testing.T, status entity.TransactionStatus) *reversalFixture {
	t.Helper()
	f := &reversalFixture{
		txns:      newMemTxnRepo(),
		reversals: newMemReversalRepo(),
		errs:      &memErrorRepo{},
		rail:      &fakeReversalRail{},
	}
	f.svc = NewReversalService(f.txns, f.reversals, f.errs, f.rail)

	require.NoError(t, f.txns.Create(context.Background(), &entity.Transaction{
		CheckoutRequestID: "ws_CO_1",
		Status:            status,
		AmountReceived:    decimal.NewFromInt(100),
		UpdatedAt:         time.Now().UTC(),
	}))
	return f
}

func (f *reversalFixture) initiate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Initiate(context.Background(), "ws_CO_1", "0700000001", decimal.NewFromInt(100)))
}

func TestReversalInitiateAcceptedGoesPending(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.initiate(t)

	require.Equal(t, entity.StatusReversalPendingConfirmation, f.txns.status(t, "ws_CO_1"))

	pending := f.reversals.pending["ws_CO_1"]
	require.NotNil(t, pending)
	require.Equal(t, "orig-ws_CO_1", pending.OriginatorConversationID)
	require.Equal(t, "0700000001", pending.PayerMsisdn)
	require.True(t, pending.OriginalAmount.Equal(decimal.NewFromInt(100)))
	require.Contains(t, pending.RequestPayload, "airtime fulfillment failed")
}

func TestReversalInitiateRejectedFlagsTransaction(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.rail.err = errors.New("invalid security credential")

	require.NoError(t, f.svc.Initiate(context.Background(), "ws_CO_1", "0700000001", decimal.NewFromInt(100)))

	require.Equal(t, entity.StatusReversalInitiationFailed, f.txns.status(t, "ws_CO_1"))
	txn, _ := f.txns.FindByCheckoutRequestID(context.Background(), "ws_CO_1")
	require.True(t, txn.ReconciliationNeeded)
	require.Empty(t, f.reversals.pending)
	require.Len(t, f.reversals.failed, 1)
	require.Contains(t, f.reversals.failed[0].Reason, "submission rejected")
}

func TestReversalResultSuccess(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.initiate(t)

	require.NoError(t, f.svc.HandleResult(context.Background(), &daraja.ReversalResult{
		ResultCode:               0,
		ResultDesc:               "The service request is processed successfully.",
		OriginatorConversationID: "orig-ws_CO_1",
	}))

	require.Equal(t, entity.StatusReversedSuccessfully, f.txns.status(t, "ws_CO_1"))
	require.Empty(t, f.reversals.failed)

	// The record survives closed so the reversal attempt stays on record.
	pending := f.reversals.pending["ws_CO_1"]
	require.NotNil(t, pending)
	require.NotNil(t, pending.ClosedAt)
	require.NotNil(t, pending.ResultCode)
	require.Equal(t, 0, *pending.ResultCode)
}

func TestReversalResultFailure(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.initiate(t)

	require.NoError(t, f.svc.HandleResult(context.Background(), &daraja.ReversalResult{
		ResultCode:               2001,
		ResultDesc:               "The initiator information is invalid.",
		OriginatorConversationID: "orig-ws_CO_1",
	}))

	require.Equal(t, entity.StatusReversalFailedConfirmation, f.txns.status(t, "ws_CO_1"))
	txn, _ := f.txns.FindByCheckoutRequestID(context.Background(), "ws_CO_1")
	require.True(t, txn.ReconciliationNeeded)
	require.Len(t, f.reversals.failed, 1)
	require.Contains(t, f.reversals.failed[0].Reason, "result_code=2001")

	pending := f.reversals.pending["ws_CO_1"]
	require.NotNil(t, pending)
	require.NotNil(t, pending.ResultCode)
	require.Equal(t, 2001, *pending.ResultCode)
}

func TestReversalDuplicateResultIsAbsorbed(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.initiate(t)

	result := &daraja.ReversalResult{ResultCode: 0, OriginatorConversationID: "orig-ws_CO_1"}
	require.NoError(t, f.svc.HandleResult(context.Background(), result))
	require.NoError(t, f.svc.HandleResult(context.Background(), result))

	// The second delivery found the record already closed and changed nothing.
	require.Equal(t, entity.StatusReversedSuccessfully, f.txns.status(t, "ws_CO_1"))
	require.False(t, f.errs.hasKind(entity.ErrKindStkCallback))
	require.Empty(t, f.reversals.failed)
}

func TestReversalResultUnknownOriginatorIsLogged(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)

	require.NoError(t, f.svc.HandleResult(context.Background(), &daraja.ReversalResult{
		ResultCode:               0,
		OriginatorConversationID: "orig-unknown",
	}))
	require.True(t, f.errs.hasKind(entity.ErrKindStkCallback))
	require.Equal(t, entity.StatusReceivedFulfillmentFailed, f.txns.status(t, "ws_CO_1"))
}

func TestReversalTimeout(t *testing.T) {
	f := newReversalFixture(t, entity.StatusReceivedFulfillmentFailed)
	f.initiate(t)

	require.NoError(t, f.svc.HandleTimeout(context.Background(), &daraja.ReversalResult{
		OriginatorConversationID: "orig-ws_CO_1",
	}))

	require.Equal(t, entity.StatusReversalTimedOut, f.txns.status(t, "ws_CO_1"))
	txn, _ := f.txns.FindByCheckoutRequestID(context.Background(), "ws_CO_1")
	require.True(t, txn.ReconciliationNeeded)
	require.Len(t, f.reversals.failed, 1)
	require.Equal(t, "rail queue timeout", f.reversals.failed[0].Reason)

	pending := f.reversals.pending["ws_CO_1"]
	require.NotNil(t, pending)
	require.NotNil(t, pending.ClosedAt)
}
