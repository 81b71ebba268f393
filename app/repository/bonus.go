package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sokofone/ms-go-airtime/app/entity"
)

var ErrDealerPinNotConfigured = errors.New("dealer service pin is not configured")

// BonusRepository covers the operator-tunable settings: the per-telco bonus
// percentages, their audit history, and the dealer service PIN.
type BonusRepository struct {
	db DBTX
}

func NewBonusRepository(db DBTX) *BonusRepository {
	return &BonusRepository{db: db}
}

// GetSettings returns the singleton percentage mapping, creating a zeroed row
// on first use.
func (r *BonusRepository) GetSettings(ctx context.Context) (*entity.BonusSettings, error) {
	query := `
		SELECT safaricom_percentage, africastalking_percentage, updated_at
		FROM bonus_settings
		WHERE id = 1
	`

	var safaricomPct, africastalkingPct string
	settings := &entity.BonusSettings{}
	err := r.db.QueryRowContext(ctx, query).Scan(&safaricomPct, &africastalkingPct, &settings.UpdatedAt)
	if err == sql.ErrNoRows {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO bonus_settings (id, safaricom_percentage, africastalking_percentage)
			VALUES (1, 0, 0)
			ON DUPLICATE KEY UPDATE id = id
		`)
		if err != nil {
			return nil, err
		}
		settings.UpdatedAt = time.Now().UTC()
		return settings, nil
	} else if err != nil {
		return nil, err
	}

	if settings.SafaricomPercentage, err = decimalFromString(safaricomPct); err != nil {
		return nil, err
	}
	if settings.AfricastalkingPercentage, err = decimalFromString(africastalkingPct); err != nil {
		return nil, err
	}

	return settings, nil
}

func (r *BonusRepository) UpdateSettings(ctx context.Context, settings *entity.BonusSettings) error {
	query := `
		INSERT INTO bonus_settings (id, safaricom_percentage, africastalking_percentage, updated_at)
		VALUES (1, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			safaricom_percentage = VALUES(safaricom_percentage),
			africastalking_percentage = VALUES(africastalking_percentage),
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		decimalValue(settings.SafaricomPercentage),
		decimalValue(settings.AfricastalkingPercentage),
	)
	return err
}

func (r *BonusRepository) AddHistory(ctx context.Context, history *entity.BonusHistory) error {
	query := `
		INSERT INTO bonus_history (telco, old_pct, new_pct, actor)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		history.Telco,
		decimalValue(history.OldPct),
		decimalValue(history.NewPct),
		history.Actor,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	history.ID = uint64(id)
	return nil
}

// ServicePin returns the raw dealer PIN. Stored in the database so operators
// can rotate it without a deploy.
func (r *BonusRepository) ServicePin(ctx context.Context) (string, error) {
	var pin string
	err := r.db.QueryRowContext(ctx, `SELECT service_pin FROM dealer_config WHERE id = 1`).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", ErrDealerPinNotConfigured
	} else if err != nil {
		return "", err
	}
	return pin, nil
}
