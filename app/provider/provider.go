// Package provider holds the airtime dispatch channels: the dealer-direct
// channel for the home telco and the aggregator channel for everyone else.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrDispatchFailed = errors.New("airtime dispatch failed")

// DispatchResult is what a channel reports after loading airtime. Balance is
// the channel's authoritative float balance and is only set when the channel
// reports one.
type DispatchResult struct {
	ProviderTxnID string
	Balance       *decimal.Decimal
}

// Dispatcher loads airtime onto a destination number. destinationMsisdn is in
// national 10-digit form; each channel converts to the format its upstream
// expects. amount is in whole shillings.
type Dispatcher interface {
	Name() string
	FloatAccount() string
	Dispatch(ctx context.Context, destinationMsisdn string, amount decimal.Decimal) (*DispatchResult, error)
}
