package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BonusSettings is the singleton per-telco bonus percentage mapping.
// Safaricom dispatches through the dealer, everything else through the
// aggregator, so two percentages cover the whole carrier set.
type BonusSettings struct {
	SafaricomPercentage      decimal.Decimal
	AfricastalkingPercentage decimal.Decimal

	UpdatedAt time.Time
}

// BonusHistory is an audit entry for a percentage change.
type BonusHistory struct {
	ID uint64

	Telco  string
	OldPct decimal.Decimal
	NewPct decimal.Decimal
	Actor  string

	CreatedAt time.Time
}

// DealerConfig holds the raw dealer service PIN as stored in settings.
type DealerConfig struct {
	ServicePin string
	UpdatedAt  time.Time
}
