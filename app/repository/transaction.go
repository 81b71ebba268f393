package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

var ErrTransactionAlreadyExists = errors.New("transaction already exists")

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateRequest freezes the customer's request parameters alongside the
// lifecycle row. Both are keyed by the rail's checkout request id.
func (r *TransactionRepository) CreateRequest(ctx context.Context, req *entity.TopupRequest) error {
	query := `
		INSERT INTO topup_requests (
			checkout_request_id, merchant_request_id, payer_msisdn,
			destination_msisdn, carrier, requested_amount, payload_snapshot
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.CheckoutRequestID,
		req.MerchantRequestID,
		req.PayerMsisdn,
		req.DestinationMsisdn,
		req.Carrier,
		decimalValue(req.RequestedAmount),
		req.PayloadSnapshot,
	)
	if err != nil && isDuplicateEntryError(err) {
		return ErrTransactionAlreadyExists
	}
	return err
}

func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			checkout_request_id, status, payment_receipt, amount_received,
			provider_used, fallback_attempted, reconciliation_needed
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.CheckoutRequestID,
		string(txn.Status),
		nullableStringValue(txn.PaymentReceipt),
		decimalValue(txn.AmountReceived),
		nullableStringValue(txn.ProviderUsed),
		txn.FallbackAttempted,
		txn.ReconciliationNeeded,
	)
	if err != nil && isDuplicateEntryError(err) {
		return ErrTransactionAlreadyExists
	}
	return err
}

func (r *TransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Transaction, error) {
	query := `
		SELECT checkout_request_id, status, payment_receipt, amount_received,
			provider_used, fallback_attempted, reconciliation_needed,
			created_at, updated_at
		FROM transactions
		WHERE checkout_request_id = ?
	`

	txn := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, checkoutRequestID), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return txn, nil
}

func (r *TransactionRepository) FindRequest(ctx context.Context, checkoutRequestID string) (*entity.TopupRequest, error) {
	query := `
		SELECT checkout_request_id, merchant_request_id, payer_msisdn,
			destination_msisdn, carrier, requested_amount, payload_snapshot,
			created_at
		FROM topup_requests
		WHERE checkout_request_id = ?
	`

	var requestedAmount string
	req := &entity.TopupRequest{}
	err := r.db.QueryRowContext(ctx, query, checkoutRequestID).Scan(
		&req.CheckoutRequestID,
		&req.MerchantRequestID,
		&req.PayerMsisdn,
		&req.DestinationMsisdn,
		&req.Carrier,
		&requestedAmount,
		&req.PayloadSnapshot,
		&req.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if req.RequestedAmount, err = decimalFromString(requestedAmount); err != nil {
		return nil, err
	}

	return req, nil
}

// Transition moves a transaction from one status to another, gated on the
// persisted pre-state. The boolean reports whether the row actually moved;
// false means another caller got there first and the side effect must not
// run again.
func (r *TransactionRepository) Transition(ctx context.Context, checkoutRequestID string, from, to entity.TransactionStatus) (bool, error) {
	query := `
		UPDATE transactions SET status = ?, updated_at = NOW()
		WHERE checkout_request_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, string(to), checkoutRequestID, string(from))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransitionWithPayment is Transition plus the payment receipt and collected
// amount, recorded in the same gated update.
func (r *TransactionRepository) TransitionWithPayment(ctx context.Context, checkoutRequestID string, from, to entity.TransactionStatus, receipt string, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE transactions SET status = ?, payment_receipt = ?, amount_received = ?, updated_at = NOW()
		WHERE checkout_request_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(to), receipt, decimalValue(amount),
		checkoutRequestID, string(from),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *TransactionRepository) SetProviderUsed(ctx context.Context, checkoutRequestID, provider string, fallbackAttempted bool) error {
	query := `
		UPDATE transactions SET provider_used = ?, fallback_attempted = ?, updated_at = NOW()
		WHERE checkout_request_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, provider, fallbackAttempted, checkoutRequestID)
	return err
}

func (r *TransactionRepository) MarkReconciliationNeeded(ctx context.Context, checkoutRequestID string) error {
	query := `
		UPDATE transactions SET reconciliation_needed = TRUE, updated_at = NOW()
		WHERE checkout_request_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, checkoutRequestID)
	return err
}

// ListStuck returns transactions that have sat in a non-terminal fulfillment
// state past the cutoff. The reconcile job sweeps these.
func (r *TransactionRepository) ListStuck(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `
		SELECT checkout_request_id, status, payment_receipt, amount_received,
			provider_used, fallback_attempted, reconciliation_needed,
			created_at, updated_at
		FROM transactions
		WHERE status IN (?, ?, ?, ?)
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(entity.StatusPushInitiated),
		string(entity.StatusReceivedPendingFulfillment),
		string(entity.StatusFulfillmentInProgress),
		string(entity.StatusReversalPendingConfirmation),
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

func scanTransaction(scan rowScanner, txn *entity.Transaction) error {
	var status string
	var receipt sql.NullString
	var amountReceived string
	var providerUsed sql.NullString

	err := scan.Scan(
		&txn.CheckoutRequestID,
		&status,
		&receipt,
		&amountReceived,
		&providerUsed,
		&txn.FallbackAttempted,
		&txn.ReconciliationNeeded,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.Status = entity.TransactionStatus(status)
	txn.PaymentReceipt = stringPtrFromNull(receipt)
	txn.ProviderUsed = stringPtrFromNull(providerUsed)

	if txn.AmountReceived, err = decimalFromString(amountReceived); err != nil {
		return err
	}

	return nil
}
