package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

var ErrReversalAlreadyPending = errors.New("reversal already pending")

type ReversalRepository struct {
	db DBTX
}

func NewReversalRepository(db DBTX) *ReversalRepository {
	return &ReversalRepository{db: db}
}

func (r *ReversalRepository) CreatePending(ctx context.Context, pending *entity.ReversalPending) error {
	query := `
		INSERT INTO reversals_pending (
			checkout_request_id, originator_conversation_id, original_amount,
			payer_msisdn, request_payload
		)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		pending.CheckoutRequestID,
		pending.OriginatorConversationID,
		decimalValue(pending.OriginalAmount),
		pending.PayerMsisdn,
		pending.RequestPayload,
	)
	if err != nil && isDuplicateEntryError(err) {
		return ErrReversalAlreadyPending
	}
	return err
}

func (r *ReversalRepository) FindPending(ctx context.Context, checkoutRequestID string) (*entity.ReversalPending, error) {
	return r.findPendingWhere(ctx, "checkout_request_id = ?", checkoutRequestID)
}

// FindPendingByOriginator matches a reversal result or timeout callback back
// to its transaction via the rail's correlation id.
func (r *ReversalRepository) FindPendingByOriginator(ctx context.Context, originatorConversationID string) (*entity.ReversalPending, error) {
	return r.findPendingWhere(ctx, "originator_conversation_id = ?", originatorConversationID)
}

func (r *ReversalRepository) findPendingWhere(ctx context.Context, where string, arg interface{}) (*entity.ReversalPending, error) {
	query := `
		SELECT checkout_request_id, originator_conversation_id, original_amount,
			payer_msisdn, request_payload, result_code, closed_at, initiated_at
		FROM reversals_pending
		WHERE ` + where

	var originalAmount string
	var resultCode sql.NullInt64
	var closedAt sql.NullTime
	pending := &entity.ReversalPending{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&pending.CheckoutRequestID,
		&pending.OriginatorConversationID,
		&originalAmount,
		&pending.PayerMsisdn,
		&pending.RequestPayload,
		&resultCode,
		&closedAt,
		&pending.InitiatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if resultCode.Valid {
		rc := int(resultCode.Int64)
		pending.ResultCode = &rc
	}
	pending.ClosedAt = timePtrFromNull(closedAt)

	if pending.OriginalAmount, err = decimalFromString(originalAmount); err != nil {
		return nil, err
	}

	return pending, nil
}

// ClosePending settles the record in place once the rail has answered; the
// row survives as the audit trail for the reversal attempt. The boolean
// reports whether the record was still open, so a duplicate result callback
// is a no-op.
func (r *ReversalRepository) ClosePending(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reversals_pending SET result_code = ?, closed_at = NOW()
		WHERE checkout_request_id = ? AND closed_at IS NULL
	`, resultCode, checkoutRequestID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ReversalRepository) CreateFailed(ctx context.Context, failed *entity.ReversalFailed) error {
	query := `
		INSERT INTO reversals_failed (checkout_request_id, reason, original_amount)
		VALUES (?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		failed.CheckoutRequestID,
		failed.Reason,
		decimalValue(failed.OriginalAmount),
	)
	return err
}
