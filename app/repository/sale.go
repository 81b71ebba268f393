package repository

import (
	"context"
	"database/sql"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

type SaleRepository struct {
	db DBTX
}

func NewSaleRepository(db DBTX) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, sale *entity.Sale) error {
	query := `
		INSERT INTO sales (
			checkout_request_id, original_amount, bonus, dispatched_amount,
			bonus_percentage, carrier, provider_used, dispatch_result
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		sale.CheckoutRequestID,
		decimalValue(sale.OriginalAmount),
		decimalValue(sale.Bonus),
		decimalValue(sale.DispatchedAmount),
		decimalValue(sale.BonusPercentage),
		sale.Carrier,
		nullableStringValue(sale.ProviderUsed),
		nullableStringValue(sale.DispatchResult),
	)
	return err
}

// SetDispatchOutcome records which channel served the sale and what it said.
// Completion time comes from the database clock.
func (r *SaleRepository) SetDispatchOutcome(ctx context.Context, checkoutRequestID, providerUsed, dispatchResult string) error {
	query := `
		UPDATE sales SET provider_used = ?, dispatch_result = ?, completed_at = NOW()
		WHERE checkout_request_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, providerUsed, dispatchResult, checkoutRequestID)
	return err
}

func (r *SaleRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Sale, error) {
	query := `
		SELECT checkout_request_id, original_amount, bonus, dispatched_amount,
			bonus_percentage, carrier, provider_used, dispatch_result,
			completed_at, created_at, updated_at
		FROM sales
		WHERE checkout_request_id = ?
	`

	var originalAmount, bonus, dispatchedAmount, bonusPercentage string
	var providerUsed, dispatchResult sql.NullString
	var completedAt sql.NullTime

	sale := &entity.Sale{}
	err := r.db.QueryRowContext(ctx, query, checkoutRequestID).Scan(
		&sale.CheckoutRequestID,
		&originalAmount,
		&bonus,
		&dispatchedAmount,
		&bonusPercentage,
		&sale.Carrier,
		&providerUsed,
		&dispatchResult,
		&completedAt,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	sale.ProviderUsed = stringPtrFromNull(providerUsed)
	sale.DispatchResult = stringPtrFromNull(dispatchResult)
	sale.CompletedAt = timePtrFromNull(completedAt)

	if sale.OriginalAmount, err = decimalFromString(originalAmount); err != nil {
		return nil, err
	}
	if sale.Bonus, err = decimalFromString(bonus); err != nil {
		return nil, err
	}
	if sale.DispatchedAmount, err = decimalFromString(dispatchedAmount); err != nil {
		return nil, err
	}
	if sale.BonusPercentage, err = decimalFromString(bonusPercentage); err != nil {
		return nil, err
	}

	return sale, nil
}
