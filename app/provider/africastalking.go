package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/phone"
	"github.com/sokofone/ms-go-airtime/config"
)

// Africastalking dispatches airtime through the aggregator's bulk endpoint,
// always as a batch of one recipient.
type Africastalking struct {
	cfg  config.AggregatorConfig
	http *resty.Client
}

func NewAfricastalking(cfg config.AggregatorConfig) *Africastalking {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Africastalking{
		cfg:  cfg,
		http: resty.New().SetTimeout(timeout),
	}
}

func (p *Africastalking) Name() string {
	return entity.ProviderAggregator
}

func (p *Africastalking) FloatAccount() string {
	return entity.FloatAfricastalking
}

type aggregatorRecipient struct {
	PhoneNumber  string `json:"phoneNumber"`
	CurrencyCode string `json:"currencyCode"`
	Amount       string `json:"amount"`
}

type aggregatorRequest struct {
	Username   string                `json:"username"`
	Recipients []aggregatorRecipient `json:"recipients"`
}

type aggregatorResponse struct {
	NumSent     int    `json:"numSent"`
	TotalAmount string `json:"totalAmount"`
	ErrorMsg    string `json:"errorMessage"`
	Responses   []struct {
		PhoneNumber  string `json:"phoneNumber"`
		Amount       string `json:"amount"`
		Status       string `json:"status"`
		RequestID    string `json:"requestId"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"responses"`
}

func (p *Africastalking) Dispatch(ctx context.Context, destinationMsisdn string, amount decimal.Decimal) (*DispatchResult, error) {
	receiver, err := phone.E164Format(destinationMsisdn)
	if err != nil {
		return nil, err
	}

	body := &aggregatorRequest{
		Username: p.cfg.Username,
		Recipients: []aggregatorRecipient{{
			PhoneNumber:  receiver,
			CurrencyCode: "KES",
			Amount:       amount.String(),
		}},
	}

	result := &aggregatorResponse{}
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("apiKey", p.cfg.APIKey).
		SetBody(body).
		SetResult(result).
		SetError(result).
		Post(p.cfg.AirtimeURL)
	if err != nil {
		return nil, fmt.Errorf("aggregator airtime request: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: aggregator status=%d error=%s", ErrDispatchFailed, resp.StatusCode(), result.ErrorMsg)
	}
	if len(result.Responses) == 0 {
		return nil, fmt.Errorf("%w: aggregator returned no recipient result (error=%s)", ErrDispatchFailed, result.ErrorMsg)
	}

	first := result.Responses[0]
	if first.Status != "Sent" || (first.ErrorMessage != "" && first.ErrorMessage != "None") {
		return nil, fmt.Errorf("%w: aggregator status=%s error=%s", ErrDispatchFailed, first.Status, first.ErrorMessage)
	}

	return &DispatchResult{ProviderTxnID: first.RequestID}, nil
}
