package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

var ErrInsufficientFloat = errors.New("insufficient float balance")

// FloatRepository tracks the prepaid balance held with each dispatch
// provider. It needs a real *sql.DB rather than DBTX because adjustments run
// inside a transaction with a row lock.
type FloatRepository struct {
	db *sql.DB
}

func NewFloatRepository(db *sql.DB) *FloatRepository {
	return &FloatRepository{db: db}
}

func (r *FloatRepository) Get(ctx context.Context, name string) (*entity.FloatBalance, error) {
	query := `SELECT name, balance, updated_at FROM float_balances WHERE name = ?`

	var balance string
	item := &entity.FloatBalance{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&item.Name, &balance, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if item.Balance, err = decimalFromString(balance); err != nil {
		return nil, err
	}

	return item, nil
}

// Adjust applies a signed delta under a row lock and returns the resulting
// balance. A delta that would take the balance below zero fails with
// ErrInsufficientFloat and leaves the row untouched. An unknown account is
// created at zero first.
func (r *FloatRepository) Adjust(ctx context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	current, err := lockBalance(ctx, tx, name)
	if err != nil {
		return decimal.Zero, err
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: account=%s balance=%s delta=%s", ErrInsufficientFloat, name, current, delta)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE float_balances SET balance = ?, updated_at = NOW() WHERE name = ?`,
		decimalValue(next), name,
	); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// Overwrite replaces the tracked balance with the provider's authoritative
// figure and returns what was tracked before, so callers can log drift.
func (r *FloatRepository) Overwrite(ctx context.Context, name string, balance decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	previous, err := lockBalance(ctx, tx, name)
	if err != nil {
		return decimal.Zero, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE float_balances SET balance = ?, updated_at = NOW() WHERE name = ?`,
		decimalValue(balance), name,
	); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return previous, nil
}

func lockBalance(ctx context.Context, tx *sql.Tx, name string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM float_balances WHERE name = ? FOR UPDATE`, name,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO float_balances (name, balance) VALUES (?, 0)`,
			name,
		); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, nil
	} else if err != nil {
		return decimal.Zero, err
	}

	return decimalFromString(raw)
}
