package repository

import (
	"context"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

type ErrorLogRepository struct {
	db DBTX
}

func NewErrorLogRepository(db DBTX) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

func (r *ErrorLogRepository) Create(ctx context.Context, log *entity.ErrorLog) error {
	query := `
		INSERT INTO error_logs (kind, sub_kind, checkout_request_id, context)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		log.Kind,
		nullableStringValue(log.SubKind),
		nullableStringValue(log.CheckoutRequestID),
		log.Context,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)
	return nil
}
