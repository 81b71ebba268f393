package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/phone"
	"github.com/sokofone/ms-go-airtime/app/provider"
	"github.com/sokofone/ms-go-airtime/app/repository"
)

type memLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func newMemLedger(initial map[string]decimal.Decimal) *memLedger {
	balances := map[string]decimal.Decimal{}
	for k, v := range initial {
		balances[k] = v
	}
	return &memLedger{balances: balances}
}

func (l *memLedger) Adjust(_ context.Context, name string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.balances[name].Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: account=%s", repository.ErrInsufficientFloat, name)
	}
	l.balances[name] = next
	return next, nil
}

func (l *memLedger) Overwrite(_ context.Context, name string, balance decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.balances[name]
	l.balances[name] = balance
	return previous, nil
}

func (l *memLedger) balance(name string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[name]
}

type stubChannel struct {
	name    string
	account string
	result  *provider.DispatchResult
	err     error
	calls   int
}

func (c *stubChannel) Name() string         { return c.name }
func (c *stubChannel) FloatAccount() string { return c.account }

func (c *stubChannel) Dispatch(_ context.Context, _ string, _ decimal.Decimal) (*provider.DispatchResult, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func dispatchFixture(dealerErr, aggregatorErr error, dealerBalance *decimal.Decimal, floats map[string]decimal.Decimal) (*DispatchService, *stubChannel, *stubChannel, *memLedger, *memErrorRepo) {
	dealer := &stubChannel{
		name:    entity.ProviderDealerDirect,
		account: entity.FloatSafaricomDealer,
		result:  &provider.DispatchResult{ProviderTxnID: "R250101.0001.000001", Balance: dealerBalance},
		err:     dealerErr,
	}
	aggregator := &stubChannel{
		name:    entity.ProviderAggregator,
		account: entity.FloatAfricastalking,
		result:  &provider.DispatchResult{ProviderTxnID: "ATQid_abc123"},
		err:     aggregatorErr,
	}

	ledger := newMemLedger(floats)
	errs := &memErrorRepo{}
	svc := NewDispatchService(provider.NewRegistry(dealer, aggregator), ledger, errs)
	return svc, dealer, aggregator, ledger, errs
}

func TestDispatchDealerDebitsAndOverwrites(t *testing.T) {
	authoritative := decimal.RequireFromString("4900.00")
	svc, dealer, aggregator, ledger, errs := dispatchFixture(nil, nil, &authoritative, map[string]decimal.Decimal{
		entity.FloatSafaricomDealer: decimal.NewFromInt(5005),
	})

	outcome, err := svc.Dispatch(context.Background(), "ws_CO_1", phone.CarrierSafaricom,
		"0712345678", decimal.NewFromInt(100), decimal.NewFromInt(105))
	require.NoError(t, err)

	require.Equal(t, entity.ProviderDealerDirect, outcome.ProviderLabel)
	require.False(t, outcome.FallbackAttempted)
	require.Equal(t, 1, dealer.calls)
	require.Zero(t, aggregator.calls)

	// Debit left 4900, matching the authoritative figure, so no drift.
	require.True(t, ledger.balance(entity.FloatSafaricomDealer).Equal(authoritative))
	require.False(t, errs.hasKind(entity.ErrKindFloatReconciliation))
}

func TestDispatchLogsFloatDrift(t *testing.T) {
	authoritative := decimal.RequireFromString("4900.00")
	svc, _, _, ledger, errs := dispatchFixture(nil, nil, &authoritative, map[string]decimal.Decimal{
		entity.FloatSafaricomDealer: decimal.NewFromInt(5200),
	})

	_, err := svc.Dispatch(context.Background(), "ws_CO_1", phone.CarrierSafaricom,
		"0712345678", decimal.NewFromInt(100), decimal.NewFromInt(105))
	require.NoError(t, err)

	// Tracked 5095 after debit, provider said 4900: overwritten plus a warning.
	require.True(t, ledger.balance(entity.FloatSafaricomDealer).Equal(authoritative))
	require.True(t, errs.hasKind(entity.ErrKindFloatReconciliation))
}

func TestDispatchFallsBackToAggregator(t *testing.T) {
	svc, dealer, aggregator, ledger, _ := dispatchFixture(errors.New("dealer 500"), nil, nil, map[string]decimal.Decimal{
		entity.FloatSafaricomDealer: decimal.NewFromInt(5000),
		entity.FloatAfricastalking:  decimal.NewFromInt(1000),
	})

	outcome, err := svc.Dispatch(context.Background(), "ws_CO_2", phone.CarrierSafaricom,
		"0712345678", decimal.NewFromInt(100), decimal.NewFromInt(105))
	require.NoError(t, err)

	require.Equal(t, entity.ProviderAggregatorFallback, outcome.ProviderLabel)
	require.True(t, outcome.FallbackAttempted)
	require.Equal(t, 1, dealer.calls)
	require.Equal(t, 1, aggregator.calls)

	// Dealer float credited back in full; aggregator debited minus commission.
	require.True(t, ledger.balance(entity.FloatSafaricomDealer).Equal(decimal.NewFromInt(5000)))
	want := decimal.NewFromInt(1000).Sub(decimal.NewFromInt(105)).Add(decimal.RequireFromString("4.00"))
	require.True(t, ledger.balance(entity.FloatAfricastalking).Equal(want),
		"aggregator float %s, want %s", ledger.balance(entity.FloatAfricastalking), want)
}

func TestDispatchTotalFailureLeavesFloatsUntouched(t *testing.T) {
	svc, _, _, ledger, errs := dispatchFixture(errors.New("dealer down"), errors.New("aggregator down"), nil, map[string]decimal.Decimal{
		entity.FloatSafaricomDealer: decimal.NewFromInt(5000),
		entity.FloatAfricastalking:  decimal.NewFromInt(1000),
	})

	_, err := svc.Dispatch(context.Background(), "ws_CO_3", phone.CarrierSafaricom,
		"0712345678", decimal.NewFromInt(100), decimal.NewFromInt(105))
	require.Error(t, err)

	require.True(t, ledger.balance(entity.FloatSafaricomDealer).Equal(decimal.NewFromInt(5000)))
	require.True(t, ledger.balance(entity.FloatAfricastalking).Equal(decimal.NewFromInt(1000)))
	require.True(t, errs.hasKind(entity.ErrKindAirtimeFulfillment))
}

func TestDispatchInsufficientFloatFallsBack(t *testing.T) {
	svc, dealer, aggregator, ledger, _ := dispatchFixture(nil, nil, nil, map[string]decimal.Decimal{
		entity.FloatSafaricomDealer: decimal.NewFromInt(10),
		entity.FloatAfricastalking:  decimal.NewFromInt(1000),
	})

	outcome, err := svc.Dispatch(context.Background(), "ws_CO_4", phone.CarrierSafaricom,
		"0712345678", decimal.NewFromInt(100), decimal.NewFromInt(105))
	require.NoError(t, err)

	// The dealer channel was never called; its float could not cover the
	// debit in the first place.
	require.Zero(t, dealer.calls)
	require.Equal(t, 1, aggregator.calls)
	require.Equal(t, entity.ProviderAggregatorFallback, outcome.ProviderLabel)
	require.True(t, ledger.balance(entity.FloatSafaricomDealer).Equal(decimal.NewFromInt(10)))
}

func TestDispatchNonHomeCarrierHasNoFallback(t *testing.T) {
	svc, dealer, aggregator, ledger, _ := dispatchFixture(nil, errors.New("aggregator down"), nil, map[string]decimal.Decimal{
		entity.FloatAfricastalking: decimal.NewFromInt(1000),
	})

	_, err := svc.Dispatch(context.Background(), "ws_CO_5", phone.CarrierAirtel,
		"0733000001", decimal.NewFromInt(50), decimal.NewFromInt(52))
	require.Error(t, err)
	require.Zero(t, dealer.calls)
	require.Equal(t, 1, aggregator.calls)
	require.True(t, ledger.balance(entity.FloatAfricastalking).Equal(decimal.NewFromInt(1000)))
}

func TestDispatchAggregatorCreditsCommission(t *testing.T) {
	svc, _, aggregator, ledger, _ := dispatchFixture(nil, nil, nil, map[string]decimal.Decimal{
		entity.FloatAfricastalking: decimal.NewFromInt(1000),
	})

	outcome, err := svc.Dispatch(context.Background(), "ws_CO_6", phone.CarrierAirtel,
		"0733000001", decimal.NewFromInt(100), decimal.NewFromInt(102))
	require.NoError(t, err)

	require.Equal(t, entity.ProviderAggregator, outcome.ProviderLabel)
	require.Equal(t, 1, aggregator.calls)

	// -102 dispatch, +4.00 commission on the 100 paid.
	want := decimal.RequireFromString("902.00")
	require.True(t, ledger.balance(entity.FloatAfricastalking).Equal(want),
		"aggregator float %s, want %s", ledger.balance(entity.FloatAfricastalking), want)
}
