package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Float account names. Each dispatch provider has one prepaid balance.
const (
	FloatSafaricomDealer = "safaricom_dealer"
	FloatAfricastalking  = "africastalking"
)

// FloatBalance is a prepaid balance held with a dispatch provider.
// Balances never go below zero.
type FloatBalance struct {
	Name    string
	Balance decimal.Decimal

	UpdatedAt time.Time
}
