package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/phone"
)

// Telco labels recorded in bonus history entries.
const (
	TelcoSafaricom      = "safaricom"
	TelcoAfricastalking = "africastalking"
)

const (
	bonusSettingsCacheKey = "bonus_settings"
	bonusSettingsCacheTTL = time.Minute
)

var oneHundred = decimal.NewFromInt(100)

type bonusSettingsRepository interface {
	GetSettings(ctx context.Context) (*entity.BonusSettings, error)
	UpdateSettings(ctx context.Context, settings *entity.BonusSettings) error
	AddHistory(ctx context.Context, history *entity.BonusHistory) error
}

// BonusService computes the airtime bonus added on top of the paid amount
// and manages the operator-tunable percentages behind it.
type BonusService struct {
	repo  bonusSettingsRepository
	cache *gocache.Cache
}

func NewBonusService(repo bonusSettingsRepository) *BonusService {
	return &BonusService{
		repo:  repo,
		cache: gocache.New(bonusSettingsCacheTTL, time.Minute),
	}
}

func (s *BonusService) GetSettings(ctx context.Context) (*entity.BonusSettings, error) {
	if cached, ok := s.cache.Get(bonusSettingsCacheKey); ok {
		return cached.(*entity.BonusSettings), nil
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(bonusSettingsCacheKey, settings)
	return settings, nil
}

// ComputeBonus returns the bonus for a top-up and the percentage it was
// computed from. The home telco keeps two-decimal precision; every other
// carrier rounds the raw bonus half-up to a whole shilling.
func (s *BonusService) ComputeBonus(ctx context.Context, carrier phone.Carrier, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	pct := settings.AfricastalkingPercentage
	if carrier.HomeTelco() {
		pct = settings.SafaricomPercentage
	}
	if pct.IsZero() || pct.IsNegative() {
		return decimal.Zero, pct, nil
	}

	raw := amount.Mul(pct).Div(oneHundred)
	if carrier.HomeTelco() {
		return raw.Round(2), pct, nil
	}
	return raw.Round(0), pct, nil
}

// UpdateSettings writes the new percentages and a history entry for every
// value that actually changed.
func (s *BonusService) UpdateSettings(ctx context.Context, safaricomPct, africastalkingPct decimal.Decimal, actor string) (*entity.BonusSettings, error) {
	if safaricomPct.IsNegative() || africastalkingPct.IsNegative() {
		return nil, ErrInvalidRequest
	}

	current, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !current.SafaricomPercentage.Equal(safaricomPct) {
		if err := s.repo.AddHistory(ctx, &entity.BonusHistory{
			Telco:     TelcoSafaricom,
			OldPct:    current.SafaricomPercentage,
			NewPct:    safaricomPct,
			Actor:     actor,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	if !current.AfricastalkingPercentage.Equal(africastalkingPct) {
		if err := s.repo.AddHistory(ctx, &entity.BonusHistory{
			Telco:     TelcoAfricastalking,
			OldPct:    current.AfricastalkingPercentage,
			NewPct:    africastalkingPct,
			Actor:     actor,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	updated := &entity.BonusSettings{
		SafaricomPercentage:      safaricomPct,
		AfricastalkingPercentage: africastalkingPct,
		UpdatedAt:                now,
	}
	if err := s.repo.UpdateSettings(ctx, updated); err != nil {
		return nil, err
	}

	s.cache.Delete(bonusSettingsCacheKey)
	return updated, nil
}
