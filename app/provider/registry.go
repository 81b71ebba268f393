package provider

import (
	"errors"

	"github.com/sokofone/ms-go-airtime/app/phone"
)

var ErrCarrierNotSupported = errors.New("carrier is not supported")

// Registry routes a carrier to its dispatch channel. The home telco goes
// dealer-direct with the aggregator as fallback; every other supported
// carrier goes straight to the aggregator with no fallback.
type Registry struct {
	dealer     Dispatcher
	aggregator Dispatcher
}

func NewRegistry(dealer, aggregator Dispatcher) *Registry {
	return &Registry{dealer: dealer, aggregator: aggregator}
}

func (r *Registry) Primary(carrier phone.Carrier) (Dispatcher, error) {
	if !carrier.Supported() {
		return nil, ErrCarrierNotSupported
	}
	if carrier.HomeTelco() {
		return r.dealer, nil
	}
	return r.aggregator, nil
}

// Fallback returns the second-chance channel for a carrier, nil when the
// carrier has none.
func (r *Registry) Fallback(carrier phone.Carrier) Dispatcher {
	if carrier.HomeTelco() {
		return r.aggregator
	}
	return nil
}
