package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/phone"
)

type memBonusRepo struct {
	mu       sync.Mutex
	settings entity.BonusSettings
	history  []*entity.BonusHistory
	reads    int
}

func (r *memBonusRepo) GetSettings(_ context.Context) (*entity.BonusSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	copied := r.settings
	return &copied, nil
}

func (r *memBonusRepo) UpdateSettings(_ context.Context, settings *entity.BonusSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = *settings
	return nil
}

func (r *memBonusRepo) AddHistory(_ context.Context, history *entity.BonusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *history
	r.history = append(r.history, &copied)
	return nil
}

func newBonusService(safaricomPct, africastalkingPct string) (*BonusService, *memBonusRepo) {
	repo := &memBonusRepo{settings: entity.BonusSettings{
		SafaricomPercentage:      decimal.RequireFromString(safaricomPct),
		AfricastalkingPercentage: decimal.RequireFromString(africastalkingPct),
		UpdatedAt:                time.Now().UTC(),
	}}
	return NewBonusService(repo), repo
}

func TestComputeBonusHomeTelcoKeepsCents(t *testing.T) {
	svc, _ := newBonusService("5", "5")

	cases := []struct {
		amount string
		want   string
	}{
		{"100", "5"},
		{"55", "2.75"},
		{"7", "0.35"},
	}
	for _, tc := range cases {
		bonus, pct, err := svc.ComputeBonus(context.Background(), phone.CarrierSafaricom, decimal.RequireFromString(tc.amount))
		require.NoError(t, err)
		require.True(t, pct.Equal(decimal.NewFromInt(5)))
		require.True(t, bonus.Equal(decimal.RequireFromString(tc.want)),
			"amount %s: bonus %s, want %s", tc.amount, bonus, tc.want)
	}
}

func TestComputeBonusOtherCarriersRoundToShilling(t *testing.T) {
	svc, _ := newBonusService("5", "5")

	cases := []struct {
		amount string
		want   string
	}{
		{"90", "5"},  // 4.50 rounds up
		{"88", "4"},  // 4.40 rounds down
		{"100", "5"}, // exact
	}
	for _, tc := range cases {
		bonus, _, err := svc.ComputeBonus(context.Background(), phone.CarrierAirtel, decimal.RequireFromString(tc.amount))
		require.NoError(t, err)
		require.True(t, bonus.Equal(decimal.RequireFromString(tc.want)),
			"amount %s: bonus %s, want %s", tc.amount, bonus, tc.want)
	}
}

func TestComputeBonusZeroPercentage(t *testing.T) {
	svc, _ := newBonusService("0", "0")

	bonus, pct, err := svc.ComputeBonus(context.Background(), phone.CarrierSafaricom, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.True(t, bonus.IsZero())
	require.True(t, pct.IsZero())
}

func TestGetSettingsIsCached(t *testing.T) {
	svc, repo := newBonusService("5", "3")

	for i := 0; i < 3; i++ {
		_, err := svc.GetSettings(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.reads)
}

func TestUpdateSettingsRecordsHistoryForChangedValues(t *testing.T) {
	svc, repo := newBonusService("5", "3")

	// Safaricom changes, africastalking stays: one history row.
	updated, err := svc.UpdateSettings(context.Background(),
		decimal.NewFromInt(7), decimal.NewFromInt(3), "ops@example.com")
	require.NoError(t, err)
	require.True(t, updated.SafaricomPercentage.Equal(decimal.NewFromInt(7)))

	require.Len(t, repo.history, 1)
	require.Equal(t, TelcoSafaricom, repo.history[0].Telco)
	require.True(t, repo.history[0].OldPct.Equal(decimal.NewFromInt(5)))
	require.True(t, repo.history[0].NewPct.Equal(decimal.NewFromInt(7)))
	require.Equal(t, "ops@example.com", repo.history[0].Actor)

	// Updating to identical values adds nothing.
	_, err = svc.UpdateSettings(context.Background(),
		decimal.NewFromInt(7), decimal.NewFromInt(3), "ops@example.com")
	require.NoError(t, err)
	require.Len(t, repo.history, 1)
}

func TestUpdateSettingsRejectsNegativePercentages(t *testing.T) {
	svc, _ := newBonusService("5", "3")

	_, err := svc.UpdateSettings(context.Background(),
		decimal.NewFromInt(-1), decimal.NewFromInt(3), "ops@example.com")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateSettingsInvalidatesCache(t *testing.T) {
	svc, _ := newBonusService("5", "3")

	bonus, _, err := svc.ComputeBonus(context.Background(), phone.CarrierSafaricom, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, bonus.Equal(decimal.NewFromInt(5)))

	_, err = svc.UpdateSettings(context.Background(),
		decimal.NewFromInt(10), decimal.NewFromInt(3), "ops@example.com")
	require.NoError(t, err)

	bonus, _, err = svc.ComputeBonus(context.Background(), phone.CarrierSafaricom, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, bonus.Equal(decimal.NewFromInt(10)), "bonus %s after update", bonus)
}
